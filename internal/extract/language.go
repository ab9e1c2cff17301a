package extract

import "strings"

// missingLanguages returns the parts of a tesseract language spec such as
// "eng+deu" that have no installed traineddata.
func missingLanguages(spec string, installed []string) []string {
	have := make(map[string]struct{}, len(installed))
	for _, lang := range installed {
		have[lang] = struct{}{}
	}
	var missing []string
	for _, lang := range strings.Split(spec, "+") {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		if _, ok := have[lang]; !ok {
			missing = append(missing, lang)
		}
	}
	return missing
}
