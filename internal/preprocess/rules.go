package preprocess

// Rules holds the per-dataset cleaning rules. Callers treat a Rules value as
// immutable; DefaultRules returns a fresh copy each time.
type Rules struct {
	Incidents        IncidentRules
	FireStations     FireStationRules
	FireStationAreas AreaRules
	Assessments      AssessmentRules
	Census           CensusRules
}

// IncidentRules cleans the combined incident partitions.
type IncidentRules struct {
	IDColumn        string
	Drop            []string
	Rename          map[string]string
	CategoryColumn  string
	CategoryLabels  map[string]string
	Outliers        []Outlier
	Required        []string
	TimestampColumn string
	DateColumn      string
	TimeColumn      string
	IntegerColumns  []string
}

// FireStationRules cleans the fire-station reference table.
type FireStationRules struct {
	Rename      map[string]string
	AreaColumn  string
	AreaFirst   string
	AreaSecond  string
	Drop        []string
	DateColumns []string
}

// AreaRules cleans the fire-station service-area polygons.
type AreaRules struct {
	Drop   []string
	Rename map[string]string
}

// AssessmentRules cleans the property-assessment polygons.
type AssessmentRules struct {
	Drop           []string
	Rename         map[string]string
	IntegerColumns []string
	YearColumn     string
	CategoryColumn string
	CategoryLabels map[string]string
}

// CensusRules cleans the census polygons.
type CensusRules struct {
	Rename   map[string]string
	Outliers []Outlier
}

// Canonical identifiers shared across stages.
const (
	ColIncidentID       = "INCIDENT_ID"
	ColAssessmentID     = "ASSESSMENT_ID"
	ColCensusID         = "DGUID"
	ColFireStationID    = "FIRE_STATION_ID"
	ColIncidentCategory = "INCIDENT_CATEGORY"
	ColYearConstruction = "YEAR_CONSTRUCTION"
)

// DefaultRules returns the rules for the City of Montreal open-data exports.
func DefaultRules() Rules {
	return Rules{
		Incidents: IncidentRules{
			IDColumn: ColIncidentID,
			Drop:     []string{"INCIDENT_NBR", "NOM_ARROND", "DIVISION", "NOM_VILLE", "MTM8_X", "MTM8_Y"},
			Rename: map[string]string{
				"CASERNE":            "DISPATCHED_FIRE_STATION_ID",
				"INCIDENT_TYPE_DESC": "INCIDENT_TYPE",
				"DESCRIPTION_GROUPE": ColIncidentCategory,
				"NOMBRE_UNITES":      "UNITS_DEPLOYED",
			},
			CategoryColumn: ColIncidentCategory,
			CategoryLabels: map[string]string{
				"SANS FEU": "Sans incendie",
				"FAU-ALER": "Fausses alertes/annulations",
				"1-REPOND": "Premier répondant",
				"AUTREFEU": "Autres incendies",
				"INCENDIE": "Incendies de bâtiments",
			},
			Outliers: []Outlier{
				{Column: ColIncidentCategory, Value: "NOUVEAU"},
				{Column: ColLatitude, Value: int64(0)},
			},
			Required:        []string{ColLatitude, ColLongitude, ColIncidentCategory},
			TimestampColumn: "CREATION_DATE_TIME",
			DateColumn:      "CREATION_DATE",
			TimeColumn:      "CREATION_TIME",
			IntegerColumns:  []string{"UNITS_DEPLOYED"},
		},
		FireStations: FireStationRules{
			Rename: map[string]string{
				"CASERNE":        ColFireStationID,
				"NO_CIVIQUE":     "STREET_NUMBER",
				"RUE":            "STREET_NAME",
				"NOM_RUE":        "STREET_NAME",
				"ARRONDISSEMENT": "NEIGHBORHOOD",
				"VILLE":          "CITY",
				"DATE_DEBUT":     "START_DATE",
				"DATE_FIN":       "END_DATE",
			},
			AreaColumn:  "AREA",
			AreaFirst:   "NEIGHBORHOOD",
			AreaSecond:  "CITY",
			Drop:        []string{"NEIGHBORHOOD", "CITY", "MTM8_X", "MTM8_Y"},
			DateColumns: []string{"START_DATE", "END_DATE"},
		},
		FireStationAreas: AreaRules{
			Drop:   []string{"NOM_CAS_AD", "OBJECTID"},
			Rename: map[string]string{"NO_CAS_ADM": ColFireStationID},
		},
		Assessments: AssessmentRules{
			Drop: []string{
				"MUNICIPALITE", "CIVIQUE_DEBUT", "CIVIQUE_FIN", "NOM_RUE", "SUITE_DEBUT",
				"LETTRE_DEBUT", "LETTRE_FIN", "MATRICULE83", "NO_ARROND_ILE_CUM",
			},
			Rename: map[string]string{
				"ID_UEV":              ColAssessmentID,
				"ETAGE_HORS_SOL":      "ABOVE_GROUND_FLOORS",
				"NOMBRE_LOGEMENT":     "HOUSING_UNITS",
				"ANNEE_CONSTRUCTION":  ColYearConstruction,
				"CODE_UTILISATION":    "USE_CODE",
				"LIBELLE_UTILISATION": "USE_DESCRIPTION",
				"CATEGORIE_UEF":       "USE_CATEGORY",
				"SUPERFICIE_TERRAIN":  "AREA_LAND",
				"SUPERFICIE_BATIMENT": "AREA_BUILDING",
			},
			IntegerColumns: []string{
				"ABOVE_GROUND_FLOORS", "HOUSING_UNITS", ColYearConstruction,
				"USE_CODE", "AREA_LAND", "AREA_BUILDING",
			},
			YearColumn:     ColYearConstruction,
			CategoryColumn: "USE_CATEGORY",
			CategoryLabels: map[string]string{"Régulier": "Regular"},
		},
		Census: CensusRules{
			Rename: map[string]string{
				"Average size of census families":          "AVERAGE_FAMILY_SIZE",
				"Population density per square kilometre": "POPULATION_DENSITY",
				"Population, 2021":                         "2021_POPULATION",
			},
			Outliers: []Outlier{
				{Column: "POPULATION_DENSITY", Value: int64(0)},
				{Column: "2021_POPULATION", Value: int64(0)},
			},
		},
	}
}
