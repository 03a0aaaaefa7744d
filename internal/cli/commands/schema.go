package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/conduit-odm/internal/cli/ui"
	"github.com/conduit-lang/conduit-odm/internal/fixture"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// ErrUnknownType is returned when the schema command is asked for a type
// that is not registered
var ErrUnknownType = errors.New("unknown document type")

// NewSchemaCommand creates the schema command
func NewSchemaCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [type]",
		Short: "Show the registered document types",
		Long: `Without arguments, lists every registered document type. With a type
name, shows its fields, relations and indexes after inheritance has
been flattened.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := fixture.NewRegistry()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				listTypes(out, registry, flags.noColor)
				return nil
			}

			typ, ok := registry.Get(args[0])
			if !ok {
				fmt.Fprint(cmd.ErrOrStderr(), ui.UnknownType(args[0], registry.List(), flags.noColor).Format())
				return fmt.Errorf("%w: %s", ErrUnknownType, args[0])
			}
			describeType(out, typ, flags.noColor)
			return nil
		},
	}
}

func listTypes(w io.Writer, registry *schema.Registry, noColor bool) {
	table := ui.NewTable(w, noColor, "Type", "Extends", "Collection", "Fields", "Relations", "Capabilities")
	for _, name := range registry.List() {
		typ, _ := registry.Get(name)
		table.AddRow(
			typ.Name,
			typ.Parent,
			typ.Collection(),
			strconv.Itoa(len(typ.Fields)),
			strconv.Itoa(len(typ.Relations)),
			typ.Capabilities.String(),
		)
	}
	table.Render()
}

func describeType(w io.Writer, typ *schema.DocumentType, noColor bool) {
	ui.Header(w, typ.Name, noColor)

	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Ancestry", strings.Join(typ.Ancestry(), " > "))
	kv.AddRow("Collection", typ.Collection())
	if typ.Capabilities != 0 {
		kv.AddRow("Capabilities", typ.Capabilities.String())
	}
	for _, key := range sortedKeys(typ.Options) {
		kv.AddRow("Option "+key, fmt.Sprint(typ.Options[key]))
	}
	kv.Render()
	fmt.Fprintln(w)

	fields := ui.NewTable(w, noColor, "Field", "Type", "Default", "Flags")
	for _, f := range typ.Fields {
		fields.AddRow(f.Name, f.Type.String(), describeDefault(f), fieldFlags(f))
	}
	for _, v := range typ.Virtuals {
		mode := "virtual"
		if v.ReadOnly {
			mode = "virtual, read-only"
		}
		fields.AddRow(v.Name, "", "", mode)
	}
	fields.Render()

	if len(typ.Relations) > 0 {
		fmt.Fprintln(w)
		relations := ui.NewTable(w, noColor, "Relation", "Kind", "Target", "Dependent", "Options")
		for _, rel := range typ.Relations {
			relations.AddRow(rel.Name, rel.Kind.String(), rel.Target, rel.Cascade.String(), relationOptions(rel))
		}
		relations.Render()
	}

	if len(typ.Indexes) > 0 {
		fmt.Fprintln(w)
		indexes := ui.NewTable(w, noColor, "Index", "Unique")
		for _, index := range typ.Indexes {
			unique := ""
			if index.UniqueKeys {
				unique = "yes"
			}
			indexes.AddRow(index.Name(), unique)
		}
		indexes.Render()
	}
}

func describeDefault(f *schema.FieldDefinition) string {
	switch {
	case f.DefaultFunc != nil:
		return "(computed)"
	case f.Default != nil:
		return fmt.Sprint(f.Default)
	default:
		return ""
	}
}

func fieldFlags(f *schema.FieldDefinition) string {
	var flags []string
	if f.Protected {
		flags = append(flags, "protected")
	}
	if f.Implicit {
		flags = append(flags, "implicit")
	}
	for _, c := range f.Constraints {
		flags = append(flags, c.Type.String())
	}
	if len(f.Interceptors) > 0 {
		flags = append(flags, "intercepted")
	}
	return strings.Join(flags, ", ")
}

func relationOptions(rel *schema.RelationDefinition) string {
	var opts []string
	for _, key := range rel.Order {
		opts = append(opts, "order "+key.Field+" "+key.Direction.String())
	}
	if rel.Inverse != "" {
		opts = append(opts, "inverse "+rel.Inverse)
	}
	if rel.Role != "" {
		opts = append(opts, "as "+rel.Role)
	}
	if rel.Autosave {
		opts = append(opts, "autosave")
	}
	if rel.Indexed {
		opts = append(opts, "indexed")
	}
	if rel.Nested != nil {
		opts = append(opts, "nested")
	}
	if rel.Helper != nil {
		opts = append(opts, "helper "+strings.Join(rel.Helper.Operations(), "/"))
	}
	return strings.Join(opts, ", ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
