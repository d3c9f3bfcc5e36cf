package taxonomy

// defaultLegacyAliases maps normalized legacy identifiers to the canonical id
// they were folded into. Role names used by older planning sheets all land on
// the lead or engineering lines.
var defaultLegacyAliases = map[string]string{
	"project-manager":             "MOD-LEAD",
	"mod-pm":                      "MOD-LEAD",
	"mod-pmo":                     "MOD-LEAD",
	"pmo":                         "MOD-LEAD",
	"service-delivery-lead":       "MOD-LEAD",
	"mod-sdl":                     "MOD-LEAD",
	"ingeniero-lider":             "MOD-LEAD",
	"lider-tecnico":               "MOD-LEAD",
	"mod-lead-ingeniero-delivery": "MOD-LEAD",
	"ingeniero-delivery":          "MOD-ING",
	"mod-ingeniero-delivery":      "MOD-ING",
	"ingeniero-soporte":           "MOD-ING",
	"ingenieros":                  "MOD-ING",
	"service-delivery-manager":    "MOD-SDM",
	"horas-extra":                 "MOD-OT",
	"guardias":                    "MOD-OT",
	"contratistas":                "MOD-CONT",
}

// DefaultLegacyAliases returns a copy of the built-in legacy alias map
func DefaultLegacyAliases() map[string]string {
	out := make(map[string]string, len(defaultLegacyAliases))
	for k, v := range defaultLegacyAliases {
		out[k] = v
	}
	return out
}

func normalizeAliases(aliases map[string]string) map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		key := NormalizeKey(k)
		if key == "" || v == "" {
			continue
		}
		out[key] = v
	}
	return out
}
