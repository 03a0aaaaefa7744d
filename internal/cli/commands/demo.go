package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/cli/ui"
	"github.com/conduit-lang/conduit-odm/internal/orm/crud"
	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
)

// NewDemoCommand creates the demo command
func NewDemoCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a Person lifecycle against the configured storage",
		Long: `Creates a Person with embedded and referenced children, updates it,
shows scope queries and the ssn uniqueness rule, then deletes it and
reports what the cascades did. Uses the storage and snapshot backend
from the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			return runDemo(cmd.Context(), cmd.OutOrStdout(), rt, flags.noColor)
		},
	}
}

func runDemo(ctx context.Context, w io.Writer, rt *Runtime, noColor bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	engine := rt.Engine

	engine.Hooks().Register("Person", hooks.AfterSave, &hooks.Hook{
		Type:  hooks.AfterSave,
		Async: true,
		Fn: func(hc *hooks.Context, rec hooks.Record) error {
			rt.Logger.Info("person saved",
				zap.String("type", hc.TypeName()),
				zap.Any("title", rec.Get("title")))
			return nil
		},
	})

	step := func(title string) {
		fmt.Fprintln(w)
		ui.Header(w, title, noColor)
	}

	step("Create")
	person, err := engine.Create(ctx, "Person", map[string]interface{}{
		"title": "Sir",
		"ssn":   "555-12-3456",
		"score": 10,
		"addresses_attributes": []interface{}{
			map[string]interface{}{"street": "Bond Street", "city": "London"},
		},
		"posts_attributes": []interface{}{
			map[string]interface{}{"title": "On knighthood", "rating": 3},
			map[string]interface{}{"title": "On tea", "rating": 5},
		},
		"game_attributes":        map[string]interface{}{"name": "chess"},
		"preferences_attributes": []interface{}{map[string]interface{}{"name": "Earl Grey", "value": "tea"}},
	})
	if err != nil {
		return err
	}
	describeDocument(w, person, noColor)

	step("Update")
	if err := engine.Update(ctx, person, map[string]interface{}{"age": "42", "score": 7}); err != nil {
		return err
	}
	describeDocument(w, person, noColor)
	if snapshots := engine.Tracker().Snapshots(); snapshots != nil {
		versions, err := snapshots.Versions(ctx, person.ID())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "retained versions: %s\n", joinInts(versions))
	}

	step("Related")
	posts, err := engine.Related(ctx, person, "posts")
	if err != nil {
		return err
	}
	for _, post := range posts.Items() {
		fmt.Fprintf(w, "post %q rating %v\n", post.Get("title"), post.Get("rating"))
	}

	step("Scopes")
	for _, scope := range []string{"knight", "old", "minor"} {
		criteria, err := engine.Scope("Person", scope)
		if err != nil {
			return err
		}
		n, err := engine.Count(ctx, criteria)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-8s %d  %s\n", scope, n, criteria)
	}

	step("Uniqueness")
	_, err = engine.Create(ctx, "Doctor", map[string]interface{}{"ssn": "555-12-3456", "specialty": "ENT"})
	switch {
	case crud.IsUniqueViolation(err):
		fmt.Fprint(w, ui.Message{Warning: true, Problem: err.Error(), NoColor: noColor}.Format())
	case err != nil:
		return err
	default:
		return fmt.Errorf("duplicate ssn was accepted")
	}

	step("Delete")
	preference := person.Related("preferences")
	if err := engine.Delete(ctx, person); err != nil {
		return err
	}
	for _, typeName := range []string{"Person", "Post", "Game", "Preference"} {
		criteria, err := engine.Criteria(typeName)
		if err != nil {
			return err
		}
		n, err := engine.Count(ctx, criteria)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-10s %d stored\n", typeName, n)
	}
	for _, pref := range preference {
		stored, err := engine.FindByID(ctx, "Preference", pref.ID())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "preference %q person_ids %v\n", stored.Get("name"), relationships.MemberIDs(stored, "person_ids"))
	}

	fmt.Fprintln(w)
	ui.WriteSuccess(w, "demo complete", noColor)
	return nil
}

func describeDocument(w io.Writer, doc *document.Document, noColor bool) {
	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("id", doc.ID())
	kv.AddRow("type", doc.TypeName())
	kv.AddRow("version", strconv.Itoa(doc.Version()))
	if created, ok := doc.CreatedAt(); ok {
		kv.AddRow("created_at", created.Format("2006-01-02T15:04:05.000Z07:00"))
	}
	for _, name := range []string{"title", "age", "score", "rescored"} {
		kv.AddRow(name, fmt.Sprint(doc.Get(name)))
	}
	kv.AddRow("addresses", strconv.Itoa(len(doc.Embedded("addresses"))))
	kv.Render()

	changed := color.New(color.FgHiBlack)
	if noColor {
		changed.DisableColor()
	}
	if fields := doc.ChangedFields(); len(fields) > 0 {
		changed.Fprintf(w, "unsaved changes: %s\n", strings.Join(fields, ", "))
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
