package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newListCmd(globals *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List skills installed in the workdir",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			lock, err := LoadLockfile(globals.Workdir)
			if err != nil {
				return fmt.Errorf("reading lockfile: %w", err)
			}
			if len(lock.Skills) == 0 {
				fmt.Println("No skills installed in this workdir.")

				return nil
			}

			slugs := make([]string, 0, len(lock.Skills))
			for slug := range lock.Skills {
				slugs = append(slugs, slug)
			}
			sort.Strings(slugs)

			for _, slug := range slugs {
				entry := lock.Skills[slug]
				fmt.Printf("%-32s %s %s\n",
					headingStyle.Render(slug),
					entry.Version,
					subtleStyle.Render(entry.InstalledAt.Format("2006-01-02")),
				)
			}

			return nil
		},
	}
}
