package main

import (
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show live predictions without driving hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			art, labels, err := a.resolveModel()
			if err != nil {
				return err
			}
			clf, err := a.loadClassifier(art, labels)
			if err != nil {
				return err
			}
			defer clf.Close()

			return a.runPipeline(cmd.Context(), art, labels, clf, nil, nil)
		},
	}
}
