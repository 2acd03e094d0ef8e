// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package vocab

// Tag vocabularies installed into the catalog by the CLI. Each entry is a
// tag name valid for its controlled vocabulary.

// INSPIREThemesVocab is the name of the CKAN vocabulary holding the
// INSPIRE annex themes.
const INSPIREThemesVocab = "inspire_themes"

// INSPIREThemes are the 34 themes of the INSPIRE annexes I-III.
var INSPIREThemes = []string{
	"ac", "ad", "af", "am", "au", "br", "bu", "cp", "ef", "el", "er",
	"ge", "gg", "gn", "hb", "hh", "hy", "lc", "lu", "mf", "mr", "nz",
	"of", "oi", "pd", "pf", "ps", "rs", "sd", "so", "sr", "su", "tn", "us",
}

// DCATTypesVocab is the name of the CKAN vocabulary holding dct:type codes.
const DCATTypesVocab = "dcat_type"

// DCATTypes are the EU authority codes for dataset types.
var DCATTypes = []string{
	"dataset", "series", "service", "collection", "document", "event",
	"image", "physical_object", "software", "sound", "text", "workflow",
}

// ISOTopicsVocab is the name of the CKAN vocabulary holding the ISO 19115
// topic categories.
const ISOTopicsVocab = "topic"

// ISOTopics are the ISO 19115 MD_TopicCategory codes.
var ISOTopics = []string{
	"biota", "boundaries", "climatologyMeteorologyAtmosphere", "economy",
	"elevation", "environment", "farming", "geoscientificInformation",
	"health", "imageryBaseMapsEarthCover", "inlandWaters",
	"intelligenceMilitary", "location", "oceans",
	"planningCadastre", "society", "structure", "transportation",
	"utilitiesCommunication",
}
