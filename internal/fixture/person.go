// Package fixture declares the Person document family: a Person with
// embedded and referenced relations of every kind, its Doctor
// specialization and the related document types. The demo command and the
// end-to-end tests run against it.
package fixture

import (
	"fmt"
	"regexp"
	"time"

	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// ClassOptionsKey names the Person option that specializations receive a copy of
const ClassOptionsKey = "somebody_elses_important_class_options"

// alaska is the zone the last-drink default is computed in
var alaska = time.FixedZone("AKST", -9*60*60)

var ssnWithout = regexp.MustCompile(`\$\$\$`)

// Person declares the Person document type
func Person() *schema.DocumentType {
	p := schema.NewDocumentType("Person").
		With(schema.CapTimestamps | schema.CapVersioning | schema.CapMultiParameter).
		SetOption(ClassOptionsKey, map[string]interface{}{"keep_me_around": true})

	p.AddField("title", schema.TypeObject)
	p.AddField("terms", schema.TypeBoolean)
	p.AddField("pets", schema.TypeBoolean).WithDefault(false)
	p.AddField("age", schema.TypeInteger).WithDefault(100)
	p.AddField("dob", schema.TypeDate)
	p.AddField("employer_id", schema.TypeObject)
	p.AddField("lunch_time", schema.TypeTime)
	p.AddField("aliases", schema.TypeArray)
	p.AddField("map", schema.TypeMapping)
	p.AddField("score", schema.TypeInteger).Intercept(Rescoring)
	p.AddField("blood_alcohol_content", schema.TypeFloat).WithDefaultFunc(func() interface{} { return 0.0 })
	p.AddField("last_drink_taken_at", schema.TypeDate).WithDefaultFunc(lastDrinkTakenAt)
	p.AddField("ssn", schema.TypeObject).Without(ssnWithout, "")
	p.AddField("owner_id", schema.TypeInteger).Protect()
	p.AddField("security_code", schema.TypeObject).Protect()
	p.AddField("reading", schema.TypeObject)
	p.AddField("bson_id", schema.TypeIdentifier)

	p.Index(schema.Asc("age"))
	p.Index(schema.Asc("addresses"))
	p.Index(schema.Asc("dob"))
	p.Index(schema.Asc("name"))
	p.Index(schema.Asc("title"))
	p.Index(schema.Asc("ssn")).Unique()

	p.Accessor("mode")
	p.Reader("rescored")
	p.Accessor("employer").Intercept(Employer)

	p.EmbedsMany("favorites", "Favorite").
		OrderBy("title", schema.Descending).
		InverseOf("perp").
		AcceptsNested(schema.NestedOptions{AllowDestroy: true, Limit: 5})
	p.EmbedsMany("videos", "Video").OrderBy("title", schema.Ascending)
	p.EmbedsMany("phone_numbers", "Phone")
	p.EmbedsMany("addresses", "Address").
		As("addressable").
		WithHelper(&schema.Helper{
			Values:  map[string]interface{}{"extension": "Testing"},
			Finders: map[string]string{"find_by_street": "street"},
		}).
		AcceptsNested(schema.NestedOptions{})
	p.EmbedsMany("address_components", "AddressComponent")
	p.EmbedsMany("services", "Service")

	p.EmbedsOne("pet", "Animal").AcceptsNested(schema.NestedOptions{AllowDestroy: true})
	p.EmbedsOne("name", "Name").
		As("namable").
		WithHelper(&schema.Helper{
			Values: map[string]interface{}{"extension": "Testing"},
			Checks: map[string]schema.CheckFunc{"dawkins?": isDawkins},
		}).
		AcceptsNested(schema.NestedOptions{UpdateOnly: true})
	p.EmbedsOne("quiz", "Quiz").AcceptsNested(schema.NestedOptions{})

	p.HasOne("game", "Game").
		Dependent(schema.CascadeDestroy).
		WithHelper(&schema.Helper{Values: map[string]interface{}{"extension": "Testing"}}).
		AcceptsNested(schema.NestedOptions{AllowDestroy: true})
	p.HasMany("posts", "Post").
		Dependent(schema.CascadeDelete).
		OrderBy("rating", schema.Descending).
		WithHelper(&schema.Helper{Values: map[string]interface{}{"extension": "Testing"}}).
		AcceptsNested(schema.NestedOptions{})
	p.HasMany("paranoid_posts", "ParanoidPost")
	p.HasAndBelongsToMany("preferences", "Preference").
		InverseOf("people").
		WithIndex().
		Dependent(schema.CascadeNullify).
		WithAutosave().
		OrderBy("value", schema.Descending).
		AcceptsNested(schema.NestedOptions{})
	p.HasAndBelongsToMany("user_accounts", "UserAccount")
	p.HasAndBelongsToMany("houses", "House")
	p.HasMany("drugs", "Drug").WithAutosave()
	p.HasOne("account", "Account").WithAutosave()
	p.HasAndBelongsToMany("administrated_events", "Event").
		InverseOf("administrators").
		Dependent(schema.CascadeNullify)

	return p
}

// Doctor declares the Doctor specialization of Person
func Doctor() *schema.DocumentType {
	d := schema.NewDocumentType("Doctor").Extends("Person")
	d.AddField("specialty", schema.TypeObject)
	return d
}

// Related declares the document types Person's relations point at
func Related() []*schema.DocumentType {
	simple := func(name string, fields ...string) *schema.DocumentType {
		t := schema.NewDocumentType(name)
		for _, field := range fields {
			t.AddField(field, schema.TypeObject)
		}
		return t
	}

	post := simple("Post", "title", "person_id")
	post.AddField("rating", schema.TypeInteger)

	game := simple("Game", "name", "person_id")
	game.AddField("score", schema.TypeInteger)

	preference := simple("Preference", "name", "value")
	preference.HasAndBelongsToMany("people", "Person").InverseOf("preferences")

	event := simple("Event", "title")
	event.HasAndBelongsToMany("administrators", "Person").InverseOf("administrated_events")

	return []*schema.DocumentType{
		simple("Favorite", "title"),
		simple("Video", "title", "year"),
		simple("Phone", "number", "country_code"),
		simple("Address", "street", "city", "post_code"),
		simple("AddressComponent", "street"),
		simple("Service", "sid"),
		simple("Animal", "name"),
		simple("Name", "first_name", "last_name"),
		simple("Quiz", "topic"),
		game,
		post,
		simple("ParanoidPost", "title", "person_id"),
		preference,
		simple("UserAccount", "username", "name"),
		simple("House", "name", "model"),
		simple("Drug", "name", "person_id"),
		simple("Account", "name", "person_id"),
		event,
	}
}

// Register adds the whole family to registry
func Register(registry *schema.Registry) error {
	decls := append([]*schema.DocumentType{Person(), Doctor()}, Related()...)
	for _, decl := range decls {
		if _, err := registry.Register(decl); err != nil {
			return fmt.Errorf("register %s: %w", decl.Name, err)
		}
	}
	return registry.Validate()
}

// NewRegistry returns a sealed registry holding the family
func NewRegistry() (*schema.Registry, error) {
	registry := schema.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	registry.Seal()
	return registry, nil
}

// Rescoring stores the score unchanged and exposes rescored = score + 20.
// A nil score counts as zero.
func Rescoring(rec hooks.Record, value interface{}, next hooks.Next) error {
	score, _ := value.(int)
	rec.SetVirtual("rescored", score+20)
	return next(value)
}

// Employer writes the employer's identity to employer_id. The employer
// itself is not kept.
func Employer(rec hooks.Record, value interface{}, next hooks.Next) error {
	var id interface{}
	switch emp := value.(type) {
	case nil:
	case interface{ ID() string }:
		id = emp.ID()
	default:
		return fmt.Errorf("employer: %T has no identity", value)
	}
	if err := rec.Set("employer_id", id); err != nil {
		return err
	}
	return hooks.ErrSuppressStorage
}

func isDawkins(attrs map[string]interface{}) bool {
	return attrs["first_name"] == "Richard" && attrs["last_name"] == "Dawkins"
}

func lastDrinkTakenAt() interface{} {
	day := time.Now().In(alaska).AddDate(0, 0, -1)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
