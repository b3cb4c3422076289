package model

// AuditEntry is the slice of a catalogued search audit the reconciler joins on
type AuditEntry struct {
	SearchGUID string `csv:"search_guid" db:"search_id"`
	UserGUID   string `csv:"user_guid" db:"user_id"`
	Timestamp  string `csv:"search_timestamp" db:"search_timestamp"`
	Reason     string `csv:"reason" db:"reason"`
}

// IdentityMapping links an anonymized user/search id to a named user
type IdentityMapping struct {
	UserUUID   string `csv:"user_uuid"`
	UserName   string `csv:"user_name"`
	SearchUUID string `csv:"search_uuid"`
	OrgName    string `csv:"org_name"`
}
