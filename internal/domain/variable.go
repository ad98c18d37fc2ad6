package domain

// VariableConfig is the static descriptor for one output data variable: how
// its bands are matched in the source files and how it is stored.
type VariableConfig struct {
	// Name is the unique output variable key, e.g. "t2m".
	Name string

	// Element is the GRIB element identifier bands must carry, e.g. "T".
	Element string

	// Level is the vertical-level identifier, e.g. "2-HTGL". Matched as a
	// substring of the band's level unless ExactLevel is set.
	Level      string
	ExactLevel bool

	// WindComponent is "u" or "v" for variables derived from speed/direction
	// band pairs, empty otherwise.
	WindComponent string

	// Keepbits is the number of significant mantissa bits retained by the
	// storage quantization. Zero or negative disables rounding.
	Keepbits int

	// Chunks maps dimension name to chunk extent for the array store.
	Chunks map[string]int

	Units    string
	LongName string
}

// defaultChunks targets roughly 3-5 MB compressed chunks on the CONUS grid:
// one init time per chunk, all lead times together, and a 6x6 spatial split.
func defaultChunks() map[string]int {
	return map[string]int{
		"init_time": 1,
		"lead_time": LeadTimeCount,
		"y":         266,
		"x":         391,
	}
}

// Variables returns the full NBM CONUS variable table. Element and level
// keys follow the GRIB band metadata observed in NBM files; keepbits values
// trade precision for compression per variable.
func Variables() []VariableConfig {
	chunks := defaultChunks()
	return []VariableConfig{
		{Name: "t2m", Element: "T", Level: "2-HTGL", Keepbits: 12, Chunks: chunks,
			Units: "K", LongName: "2-meter temperature"},
		{Name: "dpt2m", Element: "Td", Level: "2-HTGL", Keepbits: 12, Chunks: chunks,
			Units: "K", LongName: "2-meter dewpoint temperature"},
		{Name: "tmax", Element: "MaxT", Level: "2-HTGL", Keepbits: 12, Chunks: chunks,
			Units: "K", LongName: "Maximum temperature"},
		{Name: "tmin", Element: "MinT", Level: "2-HTGL", Keepbits: 12, Chunks: chunks,
			Units: "K", LongName: "Minimum temperature"},
		{Name: "u10m", Element: "WindSpd", Level: "10-HTGL", WindComponent: "u", Keepbits: 10, Chunks: chunks,
			Units: "m s-1", LongName: "10-meter u-component of wind"},
		{Name: "v10m", Element: "WindSpd", Level: "10-HTGL", WindComponent: "v", Keepbits: 10, Chunks: chunks,
			Units: "m s-1", LongName: "10-meter v-component of wind"},
		{Name: "u80m", Element: "WindSpd", Level: "80-HTGL", WindComponent: "u", Keepbits: 10, Chunks: chunks,
			Units: "m s-1", LongName: "80-meter u-component of wind"},
		{Name: "v80m", Element: "WindSpd", Level: "80-HTGL", WindComponent: "v", Keepbits: 10, Chunks: chunks,
			Units: "m s-1", LongName: "80-meter v-component of wind"},
		{Name: "gust", Element: "WindGust", Level: "10-HTGL", Keepbits: 10, Chunks: chunks,
			Units: "m s-1", LongName: "Wind gust"},
		{Name: "tp", Element: "QPF01", Level: "0-SFC", Keepbits: 14, Chunks: chunks,
			Units: "kg m-2", LongName: "Total precipitation"},
		{Name: "prate", Element: "QPF01", Level: "0-SFC", Keepbits: 12, Chunks: chunks,
			Units: "kg m-2 s-1", LongName: "Precipitation rate"},
		{Name: "snow", Element: "SnowAmt01", Level: "0-SFC", Keepbits: 14, Chunks: chunks,
			Units: "kg m-2", LongName: "Snow accumulation"},
		{Name: "tcc", Element: "TCDC", Level: "0-RESERVED", Keepbits: 8, Chunks: chunks,
			Units: "%", LongName: "Total cloud cover"},
		{Name: "ceil", Element: "CEIL", Level: "0-RESERVED", Keepbits: 10, Chunks: chunks,
			Units: "m", LongName: "Ceiling height"},
		{Name: "vis", Element: "VIS", Level: "0-SFC", Keepbits: 10, Chunks: chunks,
			Units: "m", LongName: "Visibility"},
		{Name: "dswrf", Element: "DSWRF", Level: "0-SFC", Keepbits: 12, Chunks: chunks,
			Units: "W m-2", LongName: "Downward shortwave radiation flux"},
		{Name: "dlwrf", Element: "DLWRF", Level: "0-SFC", Keepbits: 12, Chunks: chunks,
			Units: "W m-2", LongName: "Downward longwave radiation flux"},
		{Name: "sp", Element: "PRES", Level: "0-SFC", Keepbits: 12, Chunks: chunks,
			Units: "Pa", LongName: "Surface pressure"},
		{Name: "rh2m", Element: "RH", Level: "2-HTGL", Keepbits: 10, Chunks: chunks,
			Units: "%", LongName: "2-meter relative humidity"},
	}
}
