package classify

import "strings"

// FileType is the static classification of an archive filename.
// SubjectSpecific marks document kinds that belong to a single
// employee and therefore go through code extraction and splitting.
type FileType struct {
	Code            string
	SubjectSpecific bool
	CategoryCode    string
	Description     string
}

// UnknownType is the default for filenames no pattern covers.
var UnknownType = FileType{Code: "UNBEKANNT", Description: "Unbekanntes Dokument"}

type filenameEntry struct {
	ftype    FileType
	patterns []string
}

// filenameTable maps case-insensitive filename substrings to document
// types. Ordered; the first matching pattern wins.
var filenameTable = []filenameEntry{
	{FileType{"LOHNSCHEINE", true, "05.01", "Lohnabrechnung"},
		[]string{"Lohnscheine", "Korrekturlohnscheine"}},
	{FileType{"LOHNSTEUERBESCHEINIGUNG", true, "05.02", "Lohnsteuerbescheinigung"},
		[]string{"Elektronische Lohnsteuerbescheinigung", "Lohnsteuerbescheinigung"}},
	{FileType{"MELDEBESCHEINIGUNG", true, "05.03", "SV-Meldebescheinigung (DEÜV)"},
		[]string{"Meldebescheinigung"}},
	{FileType{"ENTGELTBESCHEINIGUNG", true, "07.01", "Entgeltbescheinigung"},
		[]string{"Entgeltbescheinigung"}},
	{FileType{"BEITRAGSNACHWEIS", false, "05.03", "Beitragsnachweis"},
		[]string{"Beitragsnachweis", "Protokoll Beitragsnachweis"}},
	{FileType{"LOHNSTEUERANMELDUNG", false, "05.02", "Lohnsteueranmeldung"},
		[]string{"Lohnsteueranmeldung"}},
	{FileType{"FIBU", false, "05.04", "Fibu-Buchungen"},
		[]string{"Fibu-Journal", "Fibu-Buchungsjournal"}},
	{FileType{"LOHNJOURNAL", false, "05.01", "Lohnjournal"},
		[]string{"Lohnjournal", "Jahreslohnjournal"}},
	{FileType{"LOHNKONTO", true, "05.01", "Lohnkonto"},
		[]string{"Lohnkonto", "Jahreslohnkonto", "erweitertes Lohnkonto"}},
	{FileType{"BERUFSGENOSSENSCHAFT", false, "07.05", "Berufsgenossenschaft/Unfallmeldungen"},
		[]string{"Berufsgenossenschaftsliste", "Jahreslohnnachweis Berufsgenossenschaft"}},
	{FileType{"ELSTAM", false, "05.02", "ELStAM-Meldung"},
		[]string{"ELStAM"}},
	{FileType{"ERSTATTUNG", false, "05.03", "Erstattungsantrag U1/U2"},
		[]string{"Erstattungsantrag"}},
	{FileType{"KUG", false, "06.03", "Kurzarbeitergeld"},
		[]string{"Saison-KUG", "Saison-Kug"}},
	{FileType{"STUNDENKALENDARIUM", false, "06.01", "Arbeitszeitnachweise"},
		[]string{"Stundenkalendarium", "Soll-Istprotokoll"}},
	{FileType{"ZVK", false, "05.05", "ZVK-Beitragsliste (Altersvorsorge)"},
		[]string{"ZVK-LAK"}},
	{FileType{"DIFFERENZABRECHNUNG", false, "05.01", "Differenzabrechnung"},
		[]string{"Differenzabrechnung"}},
	{FileType{"RESTURLAUB", false, "06.01", "Urlaubsübersicht"},
		[]string{"Resturlaub"}},
	{FileType{"LST_JAHRESAUSGLEICH", false, "05.02", "Lohnsteuer-Jahresausgleich"},
		[]string{"LSt-Jahresausgleich"}},
	{FileType{"BUCHUNGSSTAPEL", false, "05.04", "DATEV-Export"},
		[]string{"EXTF_Buchungsstapel", "Buchungsstapel"}},
	{FileType{"SAGE_EXPORT", false, "05.04", "Sage-Export"},
		[]string{"E_Sage_"}},
	{FileType{"BEITRAGSSCHULD", false, "05.03", "Beitragsschuld-Berechnung"},
		[]string{"Berechnung voraussichtliche Beitragsschuld", "Beitragsschuld"}},
	{FileType{"BEITRAGSLISTE", false, "05.03", "Beitragsliste"},
		[]string{"Beitragsliste"}},
}

// ClassifyFilename resolves a filename against the static pattern
// table.
func ClassifyFilename(filename string) FileType {
	lower := strings.ToLower(filename)
	for _, entry := range filenameTable {
		for _, pattern := range entry.patterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				return entry.ftype
			}
		}
	}
	return UnknownType
}
