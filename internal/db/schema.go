package db

// Place document fields. Every engine stores documents flat under these names.
const (
	FieldID          = "id"
	FieldType        = "type"
	FieldName        = "name"
	FieldStreet      = "street"
	FieldHouseNumber = "housenumber"
	FieldPostcode    = "postcode"
	FieldAdmins      = "admins" // JSON array of {id,name,level}, stored only
	FieldAdminIDs    = "admin_ids"
	FieldAdminNames  = "admin_names"
	FieldCoord       = "coord" // "lon,lat"
	FieldBBoxMinLat  = "bbox_min_lat"
	FieldBBoxMinLon  = "bbox_min_lon"
	FieldBBoxMaxLat  = "bbox_max_lat"
	FieldBBoxMaxLon  = "bbox_max_lon"
	FieldImportance  = "importance"
	// FieldNamePrefix prefixes localized names: "name_de", "name_fr".
	FieldNamePrefix = "name_"
)

// AdminIDSeparator joins admin ids and names in multi-valued fields.
const AdminIDSeparator = ";"

// PlaceIndex returns the index definition for place documents.
func PlaceIndex(name, keyPrefix string) *IndexDefinition {
	return NewIndex(name).
		Prefix(keyPrefix).
		NoStopWords().
		Tag(FieldID).
		Tag(FieldType).
		Name(FieldName, 2).
		Name(FieldStreet, 0).
		Tag(FieldHouseNumber).
		Tag(FieldPostcode).
		TagWithOpts(FieldAdminIDs, AdminIDSeparator, true).
		Name(FieldAdminNames, 0).
		Geo(FieldCoord).
		Numeric(FieldBBoxMinLat).
		Numeric(FieldBBoxMinLon).
		Numeric(FieldBBoxMaxLat).
		Numeric(FieldBBoxMaxLon).
		SortableNumeric(FieldImportance).
		MustBuild()
}
