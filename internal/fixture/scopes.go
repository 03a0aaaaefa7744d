package fixture

import (
	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
)

// RegisterScopes adds Person's named scopes. Doctor sees them through
// inheritance.
func RegisterScopes(scopes *query.ScopeRegistry) {
	scopes.Register("Person", query.Static("minor", func(c *query.Criteria) *query.Criteria {
		return c.WhereOp("age", query.OpLessThan, 18)
	}))
	scopes.Register("Person", query.Static("without_ssn", func(c *query.Criteria) *query.Criteria {
		return c.Without("ssn")
	}))
	scopes.Register("Person", query.Static("accepted", func(c *query.Criteria) *query.Criteria {
		return c.Where("terms", true)
	}))
	scopes.Register("Person", query.Static("knight", func(c *query.Criteria) *query.Criteria {
		return c.Where("title", "Sir")
	}))
	scopes.Register("Person", query.Static("old", func(c *query.Criteria) *query.Criteria {
		return c.WhereOp("age", query.OpGreaterThan, 50)
	}))
}

// UpdateAddresses rewrites the street of every embedded address
func UpdateAddresses(person *document.Document) error {
	for _, address := range person.Embedded("addresses") {
		if err := address.Set("street", "Updated Address"); err != nil {
			return err
		}
	}
	return nil
}
