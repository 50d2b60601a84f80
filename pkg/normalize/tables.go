package normalize

import "time"

// DefaultMappings returns the mapping tables for every supported source.
// Expressions target each feed's native payload shape; nothing here reshapes
// the payload before mapping.
func DefaultMappings() map[string]SourceMapping {
	tables := []SourceMapping{
		cpscMapping(),
		safetyGateMapping(),
		healthCanadaMapping(),
		opssMapping(),
		acccMapping(),
		kccMapping(),
	}

	out := make(map[string]SourceMapping, len(tables))
	for _, t := range tables {
		out[t.SourceCode] = t
	}
	return out
}

func cpscMapping() SourceMapping {
	return SourceMapping{
		SourceCode:     "CPSC",
		DefaultCountry: "US",
		Fields: map[string]FieldMapping{
			FieldProductName: {
				Expressions: []string{"Products[0].Name", "Title"},
				Normalizers: []string{"trim", "collapse_whitespace"},
				Required:    true,
			},
			FieldBrand: {
				Expressions: []string{"Manufacturers[0].Name", "Importers[0].Name"},
				Normalizers: []string{"trim"},
			},
			FieldModelNumbers: {
				Expressions: []string{"Products[].Model"},
				Normalizers: []string{"trim", "uppercase"},
			},
			FieldIdentifyingCodes: {
				Expressions: []string{"Products[].UPC", "RecallNumber"},
				Normalizers: []string{"trim"},
			},
			FieldCategory: {
				Expressions: []string{"Products[0].Type"},
				Normalizers: []string{"trim", "lowercase"},
			},
			FieldHazardType: {
				Expressions: []string{"Hazards[0].Name"},
				Normalizers: []string{"trim"},
				ValueMap:    hazardValueMap,
			},
			FieldHazardDescription: {
				Expressions: []string{"Description", "Hazards[0].Name"},
				Normalizers: []string{"trim", "collapse_whitespace"},
			},
			FieldRecallDate: {
				Expressions: []string{"RecallDate", "LastPublishDate"},
				DateLayouts: []string{"2006-01-02T15:04:05", time.RFC3339, "2006-01-02"},
			},
		},
	}
}

func safetyGateMapping() SourceMapping {
	return SourceMapping{
		SourceCode:     "EU_SAFETY_GATE",
		DefaultCountry: "EU",
		Fields: map[string]FieldMapping{
			FieldProductName: {
				Expressions: []string{"product.name", "product", "name"},
				Normalizers: []string{"trim", "collapse_whitespace"},
				Required:    true,
			},
			FieldBrand: {
				Expressions: []string{"product.brand", "brand"},
				Normalizers: []string{"trim"},
			},
			FieldModelNumbers: {
				Expressions: []string{"product.models[]", "models[]"},
				Normalizers: []string{"trim", "uppercase"},
			},
			FieldIdentifyingCodes: {
				Expressions: []string{"product.barcode", "barcode", "batchNumber", "reference"},
				Normalizers: []string{"trim"},
			},
			FieldCategory: {
				Expressions: []string{"product.category.name", "category.name", "category"},
				Normalizers: []string{"trim", "lowercase"},
			},
			FieldHazardType: {
				Expressions: []string{"risk[0].riskType.name", "riskType", "risk"},
				Normalizers: []string{"trim"},
				ValueMap:    hazardValueMap,
			},
			FieldHazardDescription: {
				Expressions: []string{"riskDescription", "risk[0].description", "description"},
				Normalizers: []string{"trim", "collapse_whitespace"},
			},
			FieldCountry: {
				Expressions: []string{"country", "notifyingCountry.name", "notifyingCountry"},
				Normalizers: []string{"ncountry"},
			},
			FieldRecallDate: {
				Expressions: []string{"publicationDate"},
				DateLayouts: []string{"2006-01-02", time.RFC3339},
			},
		},
	}
}

func healthCanadaMapping() SourceMapping {
	return SourceMapping{
		SourceCode:     "HEALTH_CANADA",
		DefaultCountry: "CA",
		Fields: map[string]FieldMapping{
			FieldProductName: {
				Expressions: []string{"title", "panels[0].title"},
				Normalizers: []string{"trim", "collapse_whitespace"},
				Required:    true,
			},
			FieldBrand: {
				Expressions: []string{"brand", "panels[?panelName=='affected_products'].brand | [0]"},
				Normalizers: []string{"trim"},
			},
			FieldModelNumbers: {
				Expressions: []string{"models[]", "model"},
				Normalizers: []string{"trim", "uppercase"},
			},
			FieldIdentifyingCodes: {
				Expressions: []string{"upc", "recallId"},
				Normalizers: []string{"trim"},
			},
			FieldCategory: {
				Expressions: []string{"category[0]", "category"},
				Normalizers: []string{"trim", "lowercase"},
			},
			FieldHazardType: {
				Expressions: []string{"hazard", "hazardName"},
				Normalizers: []string{"trim"},
				ValueMap:    hazardValueMap,
			},
			FieldHazardDescription: {
				Expressions: []string{"hazardDescription", "summary", "title"},
				Normalizers: []string{"trim", "collapse_whitespace"},
			},
			FieldRecallDate: {
				Expressions: []string{"datePublished", "date_published"},
				DateLayouts: []string{LayoutUnix, "2006-01-02", time.RFC3339},
			},
		},
	}
}

func opssMapping() SourceMapping {
	return SourceMapping{
		SourceCode:     "UK_OPSS",
		DefaultCountry: "GB",
		Fields: map[string]FieldMapping{
			FieldProductName: {
				Expressions: []string{"title"},
				Normalizers: []string{"trim", "collapse_whitespace"},
				Required:    true,
			},
			FieldBrand: {
				Expressions: []string{"details.metadata.brand", "brand"},
				Normalizers: []string{"trim"},
			},
			FieldModelNumbers: {
				Expressions: []string{"details.metadata.model_number[]", "details.metadata.model_number"},
				Normalizers: []string{"trim", "uppercase"},
			},
			FieldIdentifyingCodes: {
				Expressions: []string{"details.metadata.alert_issued_by_reference", "content_id"},
				Normalizers: []string{"trim"},
			},
			FieldCategory: {
				Expressions: []string{"details.metadata.product_category[0]", "details.metadata.product_category"},
				Normalizers: []string{"trim", "lowercase"},
			},
			FieldHazardType: {
				Expressions: []string{"details.metadata.product_risk_level[0]", "details.metadata.hazard"},
				Normalizers: []string{"trim"},
				ValueMap:    hazardValueMap,
			},
			FieldHazardDescription: {
				Expressions: []string{"description", "details.body"},
				Normalizers: []string{"trim", "collapse_whitespace"},
			},
			FieldRecallDate: {
				Expressions: []string{"public_updated_at", "first_published_at"},
				DateLayouts: []string{time.RFC3339, "2006-01-02"},
			},
		},
	}
}

func acccMapping() SourceMapping {
	return SourceMapping{
		SourceCode:     "AU_ACCC",
		DefaultCountry: "AU",
		Fields: map[string]FieldMapping{
			FieldProductName: {
				Expressions: []string{"product_name", "title", "name"},
				Normalizers: []string{"trim", "collapse_whitespace"},
				Required:    true,
			},
			FieldBrand: {
				Expressions: []string{"supplier", "brand", "traders[0]"},
				Normalizers: []string{"trim"},
			},
			FieldModelNumbers: {
				Expressions: []string{"identifying_features.model[]", "model_numbers[]"},
				Normalizers: []string{"trim", "uppercase"},
			},
			FieldIdentifyingCodes: {
				Expressions: []string{"identifying_features.barcode[]", "recall_number"},
				Normalizers: []string{"trim"},
			},
			FieldCategory: {
				Expressions: []string{"product_category[0]", "product_category", "category"},
				Normalizers: []string{"trim", "lowercase"},
			},
			FieldHazardType: {
				Expressions: []string{"hazard[0]", "hazard", "defect"},
				Normalizers: []string{"trim"},
				ValueMap:    hazardValueMap,
			},
			FieldHazardDescription: {
				Expressions: []string{"hazard_description", "what_are_the_hazards", "defect"},
				Normalizers: []string{"trim", "collapse_whitespace"},
			},
			FieldRecallDate: {
				Expressions: []string{"date_published", "published_date"},
				DateLayouts: []string{"2006-01-02", time.RFC3339, "02/01/2006"},
			},
		},
	}
}

func kccMapping() SourceMapping {
	return SourceMapping{
		SourceCode:     "KR_KCA",
		DefaultCountry: "KR",
		Fields: map[string]FieldMapping{
			FieldProductName: {
				Expressions: []string{"productName", "prdtNm", "title"},
				Normalizers: []string{"trim", "collapse_whitespace"},
				Required:    true,
			},
			FieldBrand: {
				Expressions: []string{"makerName", "mnfctrNm", "brand"},
				Normalizers: []string{"trim"},
			},
			FieldModelNumbers: {
				Expressions: []string{"modelName", "modelNm"},
				Normalizers: []string{"trim", "uppercase"},
			},
			FieldIdentifyingCodes: {
				Expressions: []string{"recallNo", "barcode"},
				Normalizers: []string{"trim"},
			},
			FieldCategory: {
				Expressions: []string{"categoryName", "ctgryNm"},
				Normalizers: []string{"trim", "lowercase"},
			},
			FieldHazardType: {
				Expressions: []string{"hazardType", "riskType"},
				Normalizers: []string{"trim"},
				ValueMap:    hazardValueMap,
			},
			FieldHazardDescription: {
				Expressions: []string{"recallReason", "hazardDescription"},
				Normalizers: []string{"trim", "collapse_whitespace"},
			},
			FieldRecallDate: {
				Expressions: []string{"recallDate", "publicationDate"},
				DateLayouts: []string{"20060102", "2006-01-02", time.RFC3339},
			},
		},
	}
}
