package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/domain"
)

// toolFieldOptions lists the values a generated answer may take for dropdown fields.
var toolFieldOptions = map[string][]any{
	"access_control":                     {"Yes", "No", "Limited", "DoesNotMatter"},
	"version_control":                    {"Yes", "No", "DoesNotMatter"},
	"support_for_workflow":               {"Yes", "No", "DoesNotMatter"},
	"web_access":                         {"Yes", "No", "DoesNotMatter"},
	"deployment_options_on_prem_or_saas": {1, 2, 3, "DoesNotMatter"},
	"free_community_edition":             {1, 2, 3, 4, "DoesNotMatter"},
	"authentication_protocol_supported":  {1, 2, 3, 4, "DoesNotMatter"},
	"api_integration_with_upstream_downstream_systems": {"Yes but limited", "No", "Limited", "DoesNotMatter"},
	"user_created_tags_comments":    {"DoesNotMatter", "Yes", "No", "LimitedFunctionality"},
	"customization_possible":        {"Yes", "No", "Limited functionality", "DoesNotMatter"},
	"modern_ways_of_deployment":     {1, 2, 3, "DoesNotMatter"},
	"ai_capabilities":               {"Yes", "No", "Limited"},
	"support_import_export_formats": {"Yes", "No", "Limited functionality"},
}

// toolContextFields are echoed into the prompt so the model knows which tool it describes.
var toolContextFields = []struct{ label, key string }{
	{"Name", "tool_name"},
	{"Category", "category_name"},
	{"URL", "home_page_url"},
	{"Price", "price"},
	{"Features", "core_features"},
	{"AI Capabilities", "ai_capabilities"},
	{"Deployment Options", "deployment_options_on_prem_or_saas"},
	{"Free Community Edition", "free_community_edition"},
}

// EnrichmentService fills missing catalogue fields with generated text.
type EnrichmentService struct {
	generator TextGenerator
	log       logrus.FieldLogger
}

func NewEnrichmentService(generator TextGenerator, log logrus.FieldLogger) *EnrichmentService {
	return &EnrichmentService{generator: generator, log: log}
}

// EnrichToolFields asks the generator for the given fields of tool and returns only
// the requested fields that came back non-empty.
func (s *EnrichmentService) EnrichToolFields(ctx context.Context, tool map[string]any, fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return map[string]any{}, nil
	}
	generated, err := s.generator.CompleteJSON(ctx, toolPrompt(tool, fields))
	if err != nil {
		return nil, domain.Upstream(err, "Failed to generate tool fields")
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := generated[f]
		if !ok || isEmptyValue(v) {
			continue
		}
		out[f] = v
	}
	s.log.WithFields(logrus.Fields{
		"requested": len(fields),
		"filled":    len(out),
	}).Info("tool fields generated")
	return out, nil
}

func toolPrompt(tool map[string]any, fields []string) string {
	var b strings.Builder
	name, _ := tool["tool_name"].(string)
	if name == "" {
		name = "this database tool"
	}
	fmt.Fprintf(&b, "You are a database tool expert. Provide accurate information for %s.\n\n", name)
	fmt.Fprintf(&b, "Fields that need information: %s\n\n", strings.Join(fields, ", "))
	b.WriteString("Return a JSON object with these fields. Try to provide a value for every field.\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	var rules []string
	for _, f := range fields {
		opts, ok := toolFieldOptions[f]
		if !ok {
			continue
		}
		quoted := make([]string, len(opts))
		for i, o := range opts {
			if s, ok := o.(string); ok {
				quoted[i] = fmt.Sprintf("%q", s)
			} else {
				quoted[i] = fmt.Sprint(o)
			}
		}
		rules = append(rules, fmt.Sprintf("- %s: Must be one of [%s]", f, strings.Join(quoted, ", ")))
	}
	sort.Strings(rules)
	if len(rules) > 0 {
		b.WriteString("\nSTRICT VALIDATION RULES (You MUST select the best matching value from these lists for the respective fields):\n")
		b.WriteString(strings.Join(rules, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nContext about the tool:\n")
	for _, c := range toolContextFields {
		fmt.Fprintf(&b, "- %s: %s\n", c.label, contextValue(tool[c.key]))
	}
	b.WriteString("\nFor fields with numeric options return them as numbers. \"core_features\" and \"useful_links\" must be JSON arrays of strings. Only return the JSON object.")
	return b.String()
}

func contextValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "N/A"
	case string:
		if t == "" {
			return "N/A"
		}
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}
