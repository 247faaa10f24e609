package constants

// CanonicalWarning is the federally required health warning statement.
const CanonicalWarning = "GOVERNMENT WARNING: (1) According to the Surgeon General, women should not " +
	"drink alcoholic beverages during pregnancy because of the risk of birth defects. " +
	"(2) Consumption of alcoholic beverages impairs your ability to drive a car or " +
	"operate machinery, and may cause health problems."
