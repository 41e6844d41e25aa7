package retrieval

// DefaultKnowledgeBase covers the observatory vocabulary the planner and
// synthesizer need when a request is resolvable from background knowledge
// rather than from the user: device categories, location codes, property
// codes, and supported download formats.
func DefaultKnowledgeBase() []Document {
	return []Document{
		{
			Source: "device-categories",
			Text: "Device categories include CTD (conductivity temperature depth), " +
				"FLUOROMETER (chlorophyll and turbidity sensors), HYDROPHONE (acoustic), " +
				"OXYSENSOR (dissolved oxygen), ADCP (acoustic doppler current profiler), " +
				"PHSENSOR (seawater pH), and ICEPROFILER (upward looking sonar).",
		},
		{
			Source: "locations",
			Text: "Cambridge Bay observatory locations: CBYIP is the underwater platform, " +
				"CBYSS is the shore station, CBYDS is the dock. Other sites include " +
				"BACAX (Barkley Canyon axis) and SEVIP (Strait of Georgia east).",
		},
		{
			Source: "properties",
			Text: "Scalar property codes: seawatertemperature (sea temperature), " +
				"airtemperature (air temperature), chlorophyll, salinity, oxygen, " +
				"pressure, turbidityntu, ph, conductivity, density, icedraft.",
		},
		{
			Source: "temperature-ambiguity",
			Text: "The word temperature alone is ambiguous: CTD devices measure " +
				"seawatertemperature underwater while shore-station sensors measure " +
				"airtemperature. Ask which one is meant when the device category is unclear.",
		},
		{
			Source: "download-formats",
			Text: "Data downloads support file extensions csv, json, txt and mat for raw " +
				"time series, and png or pdf for plotted products. The data product code " +
				"follows from the extension and is never chosen directly by the user.",
		},
		{
			Source: "resampling",
			Text: "Downloads can resample raw data: averaging over an interval, keeping " +
				"minimum and maximum per interval, or both combined. Averaging always " +
				"applies quality control before aggregation.",
		},
	}
}
