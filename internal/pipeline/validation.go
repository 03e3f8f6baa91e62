package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/aperture/internal/domain"
)

// ParseInsightResponse cleans, parses and validates model output.
// Any deviation from the insight schema yields a *ValidationError.
// The returned TotalInsights is always len(Insights); AnalysisTimestamp is
// left zero for the caller to stamp.
func ParseInsightResponse(text string) (*domain.InsightResponse, error) {
	resp, _, err := parseInsightResponse(text)
	return resp, err
}

// parseInsightResponse also returns the total_insights value the model reported.
func parseInsightResponse(text string) (*domain.InsightResponse, int, error) {
	obj, err := decodeModelObject(cleanModelJSON(text))
	if err != nil {
		return nil, 0, err
	}

	rawInsights, ok := obj["insights"]
	if !ok {
		return nil, 0, &ValidationError{Path: "insights", Reason: "missing required field"}
	}
	items, ok := rawInsights.([]interface{})
	if !ok {
		return nil, 0, &ValidationError{Path: "insights", Reason: fmt.Sprintf("is %s, want array", jsonKind(rawInsights))}
	}

	summary, err := requireString(obj, "summary", "summary", false)
	if err != nil {
		return nil, 0, err
	}

	reported, err := requirePositiveInt(obj, "total_insights", "total_insights", true)
	if err != nil {
		return nil, 0, err
	}

	insights := make([]domain.Insight, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("insights[%d]", i)
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, 0, &ValidationError{Path: path, Reason: fmt.Sprintf("is %s, want object", jsonKind(item))}
		}
		insight, err := validateInsight(path, m)
		if err != nil {
			return nil, 0, err
		}
		insights = append(insights, insight)
	}

	return &domain.InsightResponse{
		Insights:      insights,
		Summary:       summary,
		TotalInsights: len(insights),
	}, reported, nil
}

func validateInsight(path string, m map[string]interface{}) (domain.Insight, error) {
	var in domain.Insight
	var err error

	if in.Title, err = requireString(m, "title", path+".title", true); err != nil {
		return in, err
	}
	if in.Description, err = requireString(m, "description", path+".description", true); err != nil {
		return in, err
	}
	if in.Recommendation, err = requireString(m, "recommendation", path+".recommendation", false); err != nil {
		return in, err
	}

	typ, err := requireEnum(m, "insight_type", path+".insight_type", domain.InsightTypes)
	if err != nil {
		return in, err
	}
	in.InsightType = typ

	if in.Impact, err = requireEnum(m, "impact", path+".impact", domain.Levels); err != nil {
		return in, err
	}
	if in.Confidence, err = requireEnum(m, "confidence", path+".confidence", domain.Levels); err != nil {
		return in, err
	}

	if in.SupportingData, err = requireStringList(m, "supporting_data", path+".supporting_data"); err != nil {
		return in, err
	}

	if in.Priority, err = requirePositiveInt(m, "priority", path+".priority", false); err != nil {
		return in, err
	}

	return in, nil
}

func requireString(m map[string]interface{}, key, path string, nonEmpty bool) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", &ValidationError{Path: path, Reason: "missing required field"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Path: path, Reason: fmt.Sprintf("is %s, want string", jsonKind(v))}
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		return "", &ValidationError{Path: path, Reason: "must not be empty"}
	}
	return s, nil
}

// requireEnum matches case-insensitively after trimming and returns the
// canonical lowercase value.
func requireEnum[T ~string](m map[string]interface{}, key, path string, allowed []T) (T, error) {
	s, err := requireString(m, key, path, true)
	if err != nil {
		return "", err
	}
	norm := T(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range allowed {
		if norm == a {
			return a, nil
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return "", &ValidationError{
		Path:   path,
		Reason: fmt.Sprintf("%q is not one of %s", s, strings.Join(names, ", ")),
	}
}

func requireStringList(m map[string]interface{}, key, path string) ([]string, error) {
	v, ok := m[key]
	if !ok {
		return nil, &ValidationError{Path: path, Reason: "missing required field"}
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("is %s, want array of strings", jsonKind(v))}
	}
	out := make([]string, 0, len(arr))
	for i, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, &ValidationError{
				Path:   fmt.Sprintf("%s[%d]", path, i),
				Reason: fmt.Sprintf("is %s, want string", jsonKind(item)),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// requirePositiveInt reads an integer field. With allowZero the field only
// has to be non-negative.
func requirePositiveInt(m map[string]interface{}, key, path string, allowZero bool) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, &ValidationError{Path: path, Reason: "missing required field"}
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, &ValidationError{Path: path, Reason: fmt.Sprintf("is %s, want integer", jsonKind(v))}
	}
	n, err := num.Int64()
	if err != nil {
		return 0, &ValidationError{Path: path, Reason: fmt.Sprintf("%s is not an integer", num)}
	}
	if n < 0 || (n == 0 && !allowZero) {
		return 0, &ValidationError{Path: path, Reason: fmt.Sprintf("%d must be positive", n)}
	}
	return int(n), nil
}
