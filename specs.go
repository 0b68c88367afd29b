package main

// specRule maps a set of skill ids to the sub-spec that owns them and the
// class that spec belongs to. Rules are checked in order; the first set
// containing an observed skill id wins.
type specRule struct {
	classID   int32
	className string
	specName  string
	skillIDs  []uint64
}

var specRules = []specRule{
	{1, "Stormblade", "Iaido", []uint64{1714, 1734}},
	{1, "Stormblade", "Moonstrike", []uint64{44701, 179906}},
	{2, "Frost Mage", "Icicle", []uint64{120901, 120902}},
	{2, "Frost Mage", "Frostbeam", []uint64{1241}},
	{4, "Wind Knight", "Vanguard", []uint64{1405, 1418}},
	{4, "Wind Knight", "Skyward", []uint64{1419}},
	{5, "Verdant Oracle", "Smite", []uint64{1518, 1541, 21402}},
	{5, "Verdant Oracle", "Lifebind", []uint64{20301}},
	{9, "Heavy Guardian", "Earthfort", []uint64{199902}},
	{9, "Heavy Guardian", "Block", []uint64{1930, 1931, 1934, 1935}},
	{11, "Marksman", "Falconry", []uint64{220112, 2203622}},
	{11, "Marksman", "Wildpack", []uint64{2292, 1700820, 1700825, 1700827}},
	{12, "Shield Knight", "Recovery", []uint64{2405}},
	{12, "Shield Knight", "Shield", []uint64{2406}},
	{13, "Beat Performer", "Dissonance", []uint64{2306}},
	{13, "Beat Performer", "Concerto", []uint64{2307, 2361, 55302}},
}

// detectSpec resolves a skill id to its spec and class.
func detectSpec(skillID uint64) (specName string, classID int32, ok bool) {
	for _, r := range specRules {
		for _, id := range r.skillIDs {
			if id == skillID {
				return r.specName, r.classID, true
			}
		}
	}
	return "", 0, false
}

// classNameFor returns the display name for a class id.
func classNameFor(classID int32) string {
	for _, r := range specRules {
		if r.classID == classID {
			return r.className
		}
	}
	return ""
}
