package matcher

import (
	"regexp"
	"strconv"
	"strings"
)

// Family is an ECO opening family used by the cross-contamination guard.
type Family string

const (
	FamilyUnknown      Family = ""
	FamilyIrregular    Family = "irregular"
	FamilyEnglish      Family = "english"
	FamilyQueensPawn   Family = "queens_pawn"
	FamilyIndian       Family = "indian"
	FamilyBenko        Family = "benko"
	FamilyBenoni       Family = "benoni"
	FamilyDutch        Family = "dutch"
	FamilyScandinavian Family = "scandinavian"
	FamilyAlekhine     Family = "alekhine"
	FamilyPirc         Family = "pirc"
	FamilyCaroKann     Family = "caro_kann"
	FamilySicilian     Family = "sicilian"
	FamilyFrench       Family = "french"
	FamilyOpenGame     Family = "open_game"
	FamilyKingsGambit  Family = "kings_gambit"
	FamilyItalian      Family = "italian"
	FamilyRuyLopez     Family = "ruy_lopez"
	FamilyQueensGambit Family = "queens_gambit"
	FamilyGrunfeld     Family = "grunfeld"
	FamilyCatalan      Family = "catalan"
	FamilyQueensIndian Family = "queens_indian"
	FamilyNimzoIndian  Family = "nimzo_indian"
	FamilyKingsIndian  Family = "kings_indian"
)

type ecoInterval struct {
	letter byte
	lo, hi int
	family Family
}

// ecoIntervals maps every ECO code A00–E99 to its family.
var ecoIntervals = []ecoInterval{
	{'A', 0, 9, FamilyIrregular},
	{'A', 10, 39, FamilyEnglish},
	{'A', 40, 49, FamilyQueensPawn},
	{'A', 50, 56, FamilyIndian},
	{'A', 57, 59, FamilyBenko},
	{'A', 60, 79, FamilyBenoni},
	{'A', 80, 99, FamilyDutch},
	{'B', 0, 0, FamilyIrregular},
	{'B', 1, 1, FamilyScandinavian},
	{'B', 2, 5, FamilyAlekhine},
	{'B', 6, 9, FamilyPirc},
	{'B', 10, 19, FamilyCaroKann},
	{'B', 20, 99, FamilySicilian},
	{'C', 0, 19, FamilyFrench},
	{'C', 20, 29, FamilyOpenGame},
	{'C', 30, 39, FamilyKingsGambit},
	{'C', 40, 49, FamilyOpenGame},
	{'C', 50, 59, FamilyItalian},
	{'C', 60, 99, FamilyRuyLopez},
	{'D', 0, 5, FamilyQueensPawn},
	{'D', 6, 69, FamilyQueensGambit},
	{'D', 70, 99, FamilyGrunfeld},
	{'E', 0, 9, FamilyCatalan},
	{'E', 10, 19, FamilyQueensIndian},
	{'E', 20, 59, FamilyNimzoIndian},
	{'E', 60, 99, FamilyKingsIndian},
}

// FamilyForECO resolves an ECO code (letter A–E + two digits) to its family.
func FamilyForECO(eco string) Family {
	eco = strings.ToUpper(strings.TrimSpace(eco))
	if len(eco) != 3 {
		return FamilyUnknown
	}
	letter := eco[0]
	n, err := strconv.Atoi(eco[1:])
	if err != nil {
		return FamilyUnknown
	}
	for _, iv := range ecoIntervals {
		if iv.letter == letter && n >= iv.lo && n <= iv.hi {
			return iv.family
		}
	}
	return FamilyUnknown
}

// familyCues recognize explicit family references in video titles.
var familyCues = []struct {
	family  Family
	pattern *regexp.Regexp
}{
	{FamilySicilian, regexp.MustCompile(`(?i)\b(sicilian|najdorf|dragon|sveshnikov|scheveningen|taimanov)\b`)},
	{FamilyFrench, regexp.MustCompile(`(?i)\bfrench\b`)},
	{FamilyCaroKann, regexp.MustCompile(`(?i)\bcaro[- ]?kann\b`)},
	{FamilyNimzoIndian, regexp.MustCompile(`(?i)\bnimzo[- ]?indian\b`)},
	{FamilyQueensIndian, regexp.MustCompile(`(?i)\bqueen'?s[- ]indian\b`)},
	{FamilyKingsIndian, regexp.MustCompile(`(?i)\bking'?s[- ]indian\b`)},
	{FamilyQueensGambit, regexp.MustCompile(`(?i)\b(queen'?s[- ]gambit|qgd|qga)\b`)},
	{FamilyKingsGambit, regexp.MustCompile(`(?i)\bking'?s[- ]gambit\b`)},
	{FamilyEnglish, regexp.MustCompile(`(?i)\benglish opening\b`)},
	{FamilyDutch, regexp.MustCompile(`(?i)\b(dutch defen[cs]e|leningrad dutch|stonewall)\b`)},
	{FamilyScandinavian, regexp.MustCompile(`(?i)\b(scandinavian|center counter)\b`)},
	{FamilyRuyLopez, regexp.MustCompile(`(?i)\b(ruy lopez|spanish opening|berlin defen[cs]e)\b`)},
	{FamilyItalian, regexp.MustCompile(`(?i)\b(italian game|giuoco piano)\b`)},
	{FamilyCatalan, regexp.MustCompile(`(?i)\bcatalan\b`)},
	{FamilyGrunfeld, regexp.MustCompile(`(?i)\bgr[uü]nfeld\b`)},
	{FamilyAlekhine, regexp.MustCompile(`(?i)\balekhine\b`)},
	{FamilyPirc, regexp.MustCompile(`(?i)\bpirc\b`)},
	{FamilyBenoni, regexp.MustCompile(`(?i)\bbenoni\b`)},
	{FamilyBenko, regexp.MustCompile(`(?i)\bbenko\b`)},
}

// severePairs lists unordered family pairs where a cross-match strongly
// indicates contamination; such matches are rejected outright.
var severePairs = map[[2]Family]bool{}

func addSeverePair(a, b Family) {
	if a > b {
		a, b = b, a
	}
	severePairs[[2]Family{a, b}] = true
}

func init() {
	addSeverePair(FamilyNimzoIndian, FamilyQueensGambit)
	addSeverePair(FamilySicilian, FamilyFrench)
	addSeverePair(FamilyCaroKann, FamilySicilian)
	addSeverePair(FamilyCaroKann, FamilyFrench)
	addSeverePair(FamilyKingsIndian, FamilyQueensGambit)
	addSeverePair(FamilyDutch, FamilySicilian)
	addSeverePair(FamilyScandinavian, FamilySicilian)
	addSeverePair(FamilyGrunfeld, FamilyRuyLopez)
}

// IsSevereConflict reports whether the unordered pair is in the severe
// incompatibility table.
func IsSevereConflict(a, b Family) bool {
	if a == FamilyUnknown || b == FamilyUnknown || a == b {
		return false
	}
	if a > b {
		a, b = b, a
	}
	return severePairs[[2]Family{a, b}]
}

// conflictingFamily scans a title for family cues and returns the first cue
// that differs from the opening's family, preferring severe conflicts.
func conflictingFamily(title string, opening Family) Family {
	conflict := FamilyUnknown
	for _, cue := range familyCues {
		if cue.family == opening || !cue.pattern.MatchString(title) {
			continue
		}
		if IsSevereConflict(cue.family, opening) {
			return cue.family
		}
		if conflict == FamilyUnknown {
			conflict = cue.family
		}
	}
	return conflict
}
