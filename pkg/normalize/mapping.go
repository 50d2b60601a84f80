package normalize

// FieldMapping declares how one canonical field is derived from a source
// payload. Expressions are JMESPath, tried in order until one yields a value.
type FieldMapping struct {
	Expressions []string          `json:"expressions"`
	Normalizers []string          `json:"normalizers,omitempty"`
	ValueMap    map[string]string `json:"value_map,omitempty"`
	DateLayouts []string          `json:"date_layouts,omitempty"`
	Default     string            `json:"default,omitempty"`
	// Required fields weigh more heavily against confidence when missing
	Required bool `json:"required,omitempty"`
}

// SourceMapping is the full declarative mapping table for one source
type SourceMapping struct {
	SourceCode     string                  `json:"source_code"`
	DefaultCountry string                  `json:"default_country"`
	Fields         map[string]FieldMapping `json:"fields"`
}

// LayoutUnix is a sentinel date layout for numeric unix-second timestamps
const LayoutUnix = "unix"

// Canonical field names used as keys in mapping tables
const (
	FieldProductName       = "product_name"
	FieldBrand             = "brand"
	FieldModelNumbers      = "model_numbers"
	FieldIdentifyingCodes  = "identifying_codes"
	FieldCategory          = "category"
	FieldHazardType        = "hazard_type"
	FieldHazardDescription = "hazard_description"
	FieldCountry           = "country"
	FieldRecallDate        = "recall_date"
)

// hazardValueMap folds free-text hazard labels onto the canonical hazard
// vocabulary the risk scorer weighs. Shared by sources that report hazard
// names in English.
var hazardValueMap = map[string]string{
	"fire":            "fire",
	"fire hazard":     "fire",
	"burn":            "burn",
	"burn hazard":     "burn",
	"choking":         "choking",
	"choking hazard":  "choking",
	"chemical":        "chemical",
	"chemical hazard": "chemical",
	"electric shock":  "electric_shock",
	"electrical":      "electric_shock",
	"shock":           "electric_shock",
	"laceration":      "laceration",
	"injury":          "injury",
	"injury hazard":   "injury",
	"fall":            "fall",
	"fall hazard":     "fall",
	"drowning":        "drowning",
	"entrapment":      "entrapment",
	"strangulation":   "entrapment",
	"microbiological": "microbiological",
	"bacteria":        "microbiological",
}
