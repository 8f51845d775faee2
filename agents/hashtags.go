package agents

import "strings"

// defaultHashtagCount matches the trim applied when a caller does not ask
// for a specific number of tags.
const defaultHashtagCount = 15

// hashtagLibrary maps topic keywords to tag sets. Order matters: categories
// matched earlier contribute their tags first, and the general set is always
// appended last so every suggestion carries the broad music tags.
var hashtagLibrary = []struct {
	category string
	tags     []string
}{
	{"indie", []string{"#indiemusic", "#indieartist", "#indierock", "#indiefolk", "#indiepop",
		"#independentartist", "#indiemusician", "#supportindiemusic"}},
	{"rock", []string{"#rockmusic", "#liverock", "#rockband", "#alternativerock", "#rocknroll",
		"#rockshow", "#rocklife"}},
	{"hip hop", []string{"#hiphop", "#hiphopmusic", "#rapper", "#hiphopculture", "#bars",
		"#rapmusic", "#hiphoplife"}},
	{"r&b", []string{"#rnb", "#rnbmusic", "#rnbsinger", "#rnbsoul", "#contemporaryrnb",
		"#rnbvibes"}},
	{"jazz", []string{"#jazz", "#jazzmusic", "#jazzmusician", "#livejazz", "#jazzlife",
		"#jazzclub", "#smoothjazz"}},
	{"country", []string{"#countrymusic", "#countrysinger", "#countrysong", "#countrylife",
		"#countryartist", "#nashville"}},
	{"electronic", []string{"#electronicmusic", "#edm", "#producer", "#beats", "#synth",
		"#electronica", "#dancemusic"}},
	{"soul", []string{"#soulmusic", "#soul", "#soulful", "#soulsinger", "#neosoul",
		"#soulartist"}},
	{"pop", []string{"#popmusic", "#popsinger", "#popartist", "#newpop", "#synthpop",
		"#dreampop"}},
	{"folk", []string{"#folkmusic", "#folkartist", "#folksinger", "#acoustic", "#folkrock",
		"#singersongwriter"}},
	{"gig", []string{"#liveshow", "#giglife", "#liveset", "#concert", "#tonightsshow",
		"#musicvenue", "#liveperformance", "#showtime"}},
	{"studio", []string{"#studiolife", "#recording", "#studioflow", "#newmusic",
		"#recordingstudio", "#tracking", "#mixing"}},
	{"release", []string{"#newsingle", "#newrelease", "#outnow", "#streamit", "#presave",
		"#newmusicalert", "#justdropped", "#linkinbio"}},
	{"behind the scenes", []string{"#bts", "#behindthescenes", "#behindthemusic",
		"#studiovibes", "#theprocess", "#makingmusic"}},
	{"collaboration", []string{"#collab", "#collaboration", "#featurefriday", "#musiccollab",
		"#workingwith"}},
}

// generalHashtags round out every suggestion regardless of topic.
var generalHashtags = []string{"#newmusic", "#livemusic", "#musician", "#musiclife", "#originalmusic",
	"#singersongwriter", "#musicislife", "#supportlocalmusic",
	"#independentmusician", "#musicianlife"}

// Hashtags suggests tags for a topic: every library category named in the
// topic contributes its set in library order, the general set is appended,
// duplicates are dropped keeping first occurrence, and the result is trimmed
// to count (default 15).
func Hashtags(topic string, count int) []string {
	if count <= 0 {
		count = defaultHashtagCount
	}
	lower := strings.ToLower(topic)

	var selected []string
	for _, entry := range hashtagLibrary {
		if strings.Contains(lower, entry.category) {
			selected = append(selected, entry.tags...)
		}
	}
	selected = append(selected, generalHashtags...)

	seen := make(map[string]bool, len(selected))
	unique := make([]string, 0, len(selected))
	for _, tag := range selected {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		unique = append(unique, tag)
	}
	if len(unique) > count {
		unique = unique[:count]
	}
	return unique
}
