package model

// PortalTarget is one row of the harvester's input list
type PortalTarget struct {
	Row        int
	AgencyName string
	URL        string
}

// PortalHit records which kinds of documents a harvest found for a portal
type PortalHit struct {
	AgencyName string `csv:"agency_name"`
	URL        string `csv:"url"`
	Portal     int    `csv:"portal"`
	CSV        int    `csv:"csv"`
	PDF        int    `csv:"pdf"`
	Other      int    `csv:"other"`
}

// MissingPortal is a portal URL that answered 404
type MissingPortal struct {
	AgencyName string `csv:"agency_name"`
	URL        string `csv:"url"`
	Timestamp  string `csv:"timestamp"`
}
