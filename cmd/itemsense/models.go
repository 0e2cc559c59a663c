package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-itemsense/pkg/models"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model artifacts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arts, err := models.List(a.cfg.Paths.Models, a.cfg.Model.Ext)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(arts) == 0 {
				fmt.Fprintf(out, "No %s models in %s.\n", a.cfg.Model.Ext, a.cfg.Paths.Models)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tCREATED\tLABELS\t")
			for i, art := range arts {
				created := "-"
				if !art.Created.IsZero() {
					created = art.Created.Format("2006-01-02 15:04:05")
				}
				labels := "invalid"
				if l, err := art.Labels(); err == nil {
					labels = fmt.Sprint(len(l))
				} else if models.IsNotExist(err) {
					labels = "missing"
				}
				latest := ""
				if i == 0 {
					latest = "latest"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", art.Name, created, labels, latest)
			}
			return w.Flush()
		},
	}
}
