package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/conduit-jsonapi/internal/cli/ui"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand(load func() (*app, error)) *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "schema [type...]",
		Short: "Print the derived resource types",
		Long: `Print every resource type derived from the entity metadata with its
attributes and relationships. Pass type names to limit the output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			types := a.catalog.Types()
			if len(args) > 0 {
				types = types[:0:0]
				for _, name := range args {
					typ, ok := a.catalog.Lookup(name)
					if !ok {
						return fmt.Errorf("unknown resource type %q", name)
					}
					types = append(types, typ)
				}
			}

			out := cmd.OutOrStdout()
			for i, typ := range types {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printType(out, typ, a.cfg.Server.APIPrefix, noColor)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	return cmd
}

func printType(out io.Writer, typ *resource.Type, prefix string, noColor bool) {
	ops := []string{"read"}
	if typ.Creatable {
		ops = append(ops, "create")
	}
	if typ.Updatable {
		ops = append(ops, "update")
	}
	ops = append(ops, "delete")

	ui.Heading(out, noColor, "%s", typ.Name)
	path := color.New(color.FgHiBlack)
	if noColor {
		path.DisableColor()
	}
	path.Fprintf(out, "%s/%s  [%s]\n", prefix, typ.Name, strings.Join(ops, ", "))

	table := ui.NewTable(out, noColor, "NAME", "KIND", "TARGET", "CAPABILITIES")
	for _, attr := range typ.Attributes {
		table.AddRow(attr.Name, "attribute", "", capabilities(
			capability{attr.Filterable, "filter"},
			capability{attr.Sortable, "sort"},
			capability{attr.Writable, "write"},
		))
	}
	for _, rel := range typ.Relationships {
		table.AddRow(rel.Name, rel.Cardinality.String(), rel.Type, capabilities(
			capability{rel.Filterable, "filter"},
			capability{rel.Includable, "include"},
		))
	}
	table.Render()
}

type capability struct {
	on   bool
	name string
}

// capabilities joins the names of the capabilities that are on
func capabilities(caps ...capability) string {
	var names []string
	for _, c := range caps {
		if c.on {
			names = append(names, c.name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
