package catalog

import tt "github.com/gnolang/refine/internal/types"

// Built-in transformation ids. The numbering is part of the persisted model
// format: append new rules, never reorder.
const (
	ReplaceNestedLoops tt.TransformationID = iota
	UseListComprehension
	RemoveRedundantCode
	ReplaceDataStructures
	ReplaceStringConcatenation
	ReplaceManualSum
	UseSetForUniqueness
	RemoveRedundantConversion
	UseConditionalComprehension
	HoistStrlen

	numBuiltin
)

var builtin = [numBuiltin]*LiteralRule{
	ReplaceNestedLoops: {
		RuleName: "replace_nested_loops",
		Lang:     tt.LanguagePython,
		Guards:   []string{"result = []", "for i in range(", "for j in range("},
		Match:    "result = []\nfor i in range(10):\n    for j in range(10):\n        result.append(i * j)",
		Replace:  "result = [i * j for i in range(10) for j in range(10)]",
	},
	UseListComprehension: {
		RuleName: "use_list_comprehension",
		Lang:     tt.LanguagePython,
		Guards:   []string{"result = []", "for num in range(", "result.append("},
		Match:    "result = []\nfor num in range(20):\n    result.append(num ** 2)",
		Replace:  "result = [num ** 2 for num in range(20)]",
	},
	RemoveRedundantCode: {
		RuleName: "remove_redundant_code",
		Lang:     tt.LanguagePython,
		Guards:   []string{"x = x + 0"},
		Match:    "x = x + 0",
		Replace:  "",
	},
	ReplaceDataStructures: {
		RuleName: "replace_data_structures",
		Lang:     tt.LanguagePython,
		Guards:   []string{"lookup = list(items)", "if q in lookup:"},
		Forbid:   []string{"lookup_set"},
		Match:    "lookup = list(items)\nfor q in queries:\n    if q in lookup:\n        hits += 1",
		Replace:  "lookup = list(items)\nlookup_set = set(lookup)\nfor q in queries:\n    if q in lookup_set:\n        hits += 1",
	},
	ReplaceStringConcatenation: {
		RuleName: "replace_string_concatenation",
		Lang:     tt.LanguagePython,
		Guards:   []string{"sentence = ''", "for word in words:", "sentence += word + ' '"},
		Match:    "sentence = ''\nfor word in words:\n    sentence += word + ' '",
		Replace:  "sentence = ''.join(word + ' ' for word in words)",
	},
	ReplaceManualSum: {
		RuleName: "replace_manual_sum",
		Lang:     tt.LanguagePython,
		Guards:   []string{"total = 0", "for num in numbers:", "total += num"},
		Match:    "total = 0\nfor num in numbers:\n    total += num",
		Replace:  "total = sum(numbers)",
	},
	UseSetForUniqueness: {
		RuleName: "use_set_for_uniqueness",
		Lang:     tt.LanguagePython,
		Guards:   []string{"unique_items = []", "for item in items:", "if item not in unique_items:"},
		Match:    "unique_items = []\nfor item in items:\n    if item not in unique_items:\n        unique_items.append(item)",
		Replace:  "unique_items = list(dict.fromkeys(items))",
	},
	RemoveRedundantConversion: {
		RuleName: "remove_redundant_conversion",
		Lang:     tt.LanguagePython,
		Guards:   []string{"list(list("},
		Match:    "list(list(items))",
		Replace:  "list(items)",
		Inline:   true,
	},
	UseConditionalComprehension: {
		RuleName: "use_conditional_comprehension",
		Lang:     tt.LanguagePython,
		Guards:   []string{"evens = []", "for num in numbers:", "evens.append(num)"},
		Match:    "evens = []\nfor num in numbers:\n    if num % 2 == 0:\n        evens.append(num)",
		Replace:  "evens = [num for num in numbers if num % 2 == 0]",
	},
	HoistStrlen: {
		RuleName: "hoist_strlen",
		Lang:     tt.LanguageC,
		Guards:   []string{"strlen(s)", "count++;"},
		Match:    "for (int i = 0; i < strlen(s); i++) {\n    count++;\n}",
		Replace:  "for (const char *p = s; *p; p++) {\n    count++;\n}",
	},
}

// Builtin returns copies of the built-in rules in id order.
func Builtin() []*LiteralRule {
	out := make([]*LiteralRule, len(builtin))
	for i, r := range builtin {
		c := *r
		c.Guards = append([]string(nil), r.Guards...)
		c.Forbid = append([]string(nil), r.Forbid...)
		out[i] = &c
	}
	return out
}
