package introspect

import "github.com/odoodrift/odoodrift/pkg/engine"

// baseModel is one entry of the static base-schema registry: odoodrift's own
// knowledge of a well-known Odoo model, refining what a bare fields_get call
// reports with field types, required/readonly/compute flags, and relation
// targets that are stable across Odoo versions. Entries hold no field
// descriptions and no selection values.
type baseModel struct {
	module    string
	transient bool
	fields    map[string]engine.FieldSchema
}

// baseSchemaRegistry holds odoodrift's built-in knowledge of the handful of
// core models every desired-state document is likely to touch. It is not
// meant to be exhaustive; models outside this registry are described purely
// from the live fields_get result.
var baseSchemaRegistry = map[engine.ModelId]baseModel{
	"res.partner": {
		module: "base",
		fields: map[string]engine.FieldSchema{
			"name":         {Name: "name", Type: "char", Required: true},
			"email":        {Name: "email", Type: "char"},
			"phone":        {Name: "phone", Type: "char"},
			"is_company":   {Name: "is_company", Type: "boolean"},
			"parent_id":    {Name: "parent_id", Type: "many2one", Relation: "res.partner"},
			"child_ids":    {Name: "child_ids", Type: "one2many", Relation: "res.partner"},
			"company_id":   {Name: "company_id", Type: "many2one", Relation: "res.company"},
			"category_id":  {Name: "category_id", Type: "many2many", Relation: "res.partner.category"},
			"country_id":   {Name: "country_id", Type: "many2one", Relation: "res.country"},
			"property_ids": {Name: "property_ids", Type: "properties"},
		},
	},
	"res.company": {
		module: "base",
		fields: map[string]engine.FieldSchema{
			"name":       {Name: "name", Type: "char", Required: true},
			"partner_id": {Name: "partner_id", Type: "many2one", Relation: "res.partner", ReadOnly: true},
			"currency_id": {Name: "currency_id", Type: "many2one", Relation: "res.currency"},
			"parent_id":  {Name: "parent_id", Type: "many2one", Relation: "res.company"},
			"child_ids":  {Name: "child_ids", Type: "one2many", Relation: "res.company"},
		},
	},
	"product.product": {
		module: "product",
		fields: map[string]engine.FieldSchema{
			"name":           {Name: "name", Type: "char", Required: true},
			"default_code":   {Name: "default_code", Type: "char"},
			"list_price":     {Name: "list_price", Type: "float"},
			"standard_price": {Name: "standard_price", Type: "float"},
			"qty_available":  {Name: "qty_available", Type: "float", ReadOnly: true, Compute: true},
			"categ_id":       {Name: "categ_id", Type: "many2one", Relation: "product.category", Required: true},
			"product_tmpl_id": {Name: "product_tmpl_id", Type: "many2one", Relation: "product.template", ReadOnly: true},
			"taxes_id":       {Name: "taxes_id", Type: "many2many", Relation: "account.tax"},
			"property_ids":   {Name: "property_ids", Type: "properties"},
		},
	},
}

// mergeBaseSchema overlays the base-schema registry's knowledge of model
// onto a live fields_get result. Live values win field-by-field: the
// registry adds fields fields_get did not report, and fills a live field's
// relation or label only where fields_get left it empty (e.g. a bare
// relational type with no comodel). BaseFields/LiveFields record which fields came from which
// source, for callers that want to explain a schema's provenance.
func mergeBaseSchema(model engine.ModelId, live map[string]engine.FieldSchema) (merged map[string]engine.FieldSchema, baseFields, liveFields []string) {
	base, ok := baseSchemaRegistry[model]
	if !ok {
		liveFields = make([]string, 0, len(live))
		for name := range live {
			liveFields = append(liveFields, name)
		}
		return live, nil, liveFields
	}

	merged = make(map[string]engine.FieldSchema, len(live)+len(base.fields))
	for name, schema := range live {
		merged[name] = schema
		liveFields = append(liveFields, name)
	}
	for name, schema := range base.fields {
		if liveSchema, present := merged[name]; present {
			if liveSchema.Relation == "" {
				liveSchema.Relation = schema.Relation
			}
			if liveSchema.String == "" {
				liveSchema.String = schema.String
			}
			merged[name] = liveSchema
			continue
		}
		merged[name] = schema
		baseFields = append(baseFields, name)
	}
	return merged, baseFields, liveFields
}
