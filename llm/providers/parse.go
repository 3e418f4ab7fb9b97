package providers

import (
	"bufio"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/BaSui01/biaslens/llm"
)

// 字段别名（归一化后：小写、去除非字母数字）
var fieldAliases = map[string]string{
	"score":             "score",
	"biasscore":         "score",
	"politicalscore":    "score",
	"leanscore":         "score",
	"lean":              "lean",
	"politicallean":     "lean",
	"bias":              "lean",
	"leaning":           "lean",
	"factualaccuracy":   "factual_accuracy",
	"factual":           "factual_accuracy",
	"accuracy":          "factual_accuracy",
	"factualityscore":   "factual_accuracy",
	"emotionaltone":     "emotional_tone",
	"emotional":         "emotional_tone",
	"tone":              "emotional_tone",
	"emotionalityscore": "emotional_tone",
	"confidence":        "confidence",
	"confidencescore":   "confidence",
}

// ParseAnalysis extracts the five analysis fields from a model reply. JSON
// objects (optionally inside a code fence) are tried first, then "key: value"
// lines.
func ParseAnalysis(text string, provider string) (*llm.AnalysisResult, error) {
	fields, ok := parseJSONFields(text)
	if !ok {
		fields = parseTextFields(text)
	}
	if len(fields) == 0 {
		return nil, llm.NewError(llm.KindInvalidResponse, provider, "unparseable payload", nil)
	}

	raw := llm.RawScores{Lean: fields["lean"]}
	for name, dst := range map[string]**float64{
		"score":            &raw.Score,
		"factual_accuracy": &raw.FactualAccuracy,
		"emotional_tone":   &raw.EmotionalTone,
		"confidence":       &raw.Confidence,
	} {
		v, present := fields[name]
		if !present {
			continue
		}
		f, err := parseNumber(v)
		if err != nil {
			return nil, llm.NewError(llm.KindInvalidResponse, provider, "field "+name+" is not a number", err)
		}
		*dst = &f
	}
	if _, present := fields["lean"]; !present {
		return nil, llm.NewError(llm.KindInvalidResponse, provider, "missing field lean", nil)
	}
	return raw.Normalize(provider)
}

func parseJSONFields(text string) (map[string]string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	// 部分模型会将结果包在一层对象中
	if len(obj) == 1 {
		for _, v := range obj {
			if inner, ok := v.(map[string]any); ok {
				obj = inner
			}
		}
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		name, ok := fieldAliases[normalizeKey(k)]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case string:
			fields[name] = x
		case float64:
			fields[name] = strconv.FormatFloat(x, 'f', -1, 64)
		case json.Number:
			fields[name] = x.String()
		}
	}
	return fields, len(fields) > 0
}

func parseTextFields(text string) map[string]string {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimLeft(line, "-*# ")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, ok := fieldAliases[normalizeKey(key)]
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `*"',`)
		if value != "" {
			fields[name] = value
		}
	}
	return fields
}

// parseNumber accepts "72", "72.5", "72%" and "72/100".
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	if before, _, ok := strings.Cut(s, "/"); ok {
		s = strings.TrimSpace(before)
	}
	return strconv.ParseFloat(s, 64)
}

func normalizeKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
