package visitors

import "hash/fnv"

var aliasElements = []string{
	"Pyro", "Hydro", "Anemo", "Electro", "Dendro", "Cryo", "Geo",
	"Radiant", "Wandering", "Starlit", "Crimson", "Azure", "Verdant", "Golden",
	"Silent", "Swift", "Lucky", "Curious", "Stalwart", "Moonlit", "Gilded",
	"Frosted", "Thundering", "Drifting", "Blazing", "Tidal", "Ancient", "Hidden",
}

var aliasTravelers = []string{
	"Traveler", "Archon", "Wanderer", "Knight", "Alchemist", "Scholar", "Ranger",
	"Sentinel", "Bard", "Mercenary", "Explorer", "Adventurer", "Vision-bearer", "Ronin",
	"Herbalist", "Cartographer", "Pilgrim", "Sorcerer", "Warden", "Drifter", "Seeker",
	"Slime", "Hilichurl", "Whopperflower", "Seelie", "Crystalfly", "Oceanid", "Vishap",
}

// Alias returns a readable, deterministic display name for a session key so
// dashboards never have to show the digest itself.
func Alias(sessionKey string) string {
	h := fnv.New32a()
	h.Write([]byte(sessionKey))
	index := int(h.Sum32())

	element := aliasElements[index%len(aliasElements)]
	traveler := aliasTravelers[(index/len(aliasElements))%len(aliasTravelers)]
	return element + " " + traveler
}
