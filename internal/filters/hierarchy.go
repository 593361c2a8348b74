package filters

import "github.com/alcaldia-cali/geodash/internal/config"

// Hierarchy maps each parent value to its ordered children.
type Hierarchy map[string][]string

// Reachable returns the children of the given parents, in parent order and
// without duplicates. No parents means nothing is reachable.
func (h Hierarchy) Reachable(parents []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, p := range parents {
		for _, c := range h[p] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Prune keeps the children present in reachable, preserving their order.
func Prune(children, reachable []string) []string {
	allowed := make(map[string]struct{}, len(reachable))
	for _, r := range reachable {
		allowed[r] = struct{}{}
	}

	out := make([]string, 0, len(children))
	for _, c := range children {
		if _, ok := allowed[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Hierarchies holds the three dependent selections of the filter panel.
type Hierarchies struct {
	Comunas        Hierarchy `json:"comunas"`
	Corregimientos Hierarchy `json:"corregimientos"`
	Categories     Hierarchy `json:"filtrosPersonalizados"`
}

// FromConfig returns the built-in tables with any table set in cfg replacing its default.
func FromConfig(cfg config.Hierarchies) Hierarchies {
	h := Cali()
	if len(cfg.Comunas) > 0 {
		h.Comunas = cfg.Comunas
	}
	if len(cfg.Corregimientos) > 0 {
		h.Corregimientos = cfg.Corregimientos
	}
	if len(cfg.Categories) > 0 {
		h.Categories = cfg.Categories
	}
	return h
}

// pair is a parent field with the field it constrains.
type pair struct {
	parent, child Field
	table         func(Hierarchies) Hierarchy
}

var pairs = []pair{
	{parent: FieldComunas, child: FieldBarrios, table: func(h Hierarchies) Hierarchy { return h.Comunas }},
	{parent: FieldCorregimientos, child: FieldVeredas, table: func(h Hierarchies) Hierarchy { return h.Corregimientos }},
	{parent: FieldCategories, child: FieldSubcategories, table: func(h Hierarchies) Hierarchy { return h.Categories }},
}

func pairOf(f Field) (pair, bool) {
	for _, p := range pairs {
		if p.parent == f || p.child == f {
			return p, true
		}
	}
	return pair{}, false
}

// Cali returns the built-in comuna, corregimiento and category tables.
func Cali() Hierarchies {
	return Hierarchies{
		Comunas: Hierarchy{
			"Comuna 1":  {"Terrón Colorado", "Aguablanca", "El Calvario", "Primitivo Iglesias"},
			"Comuna 2":  {"Obrero", "San Nicolás", "Sucre", "Pizamos"},
			"Comuna 3":  {"San Cayetano", "El Peñón", "Navarro", "Santa Rosa"},
			"Comuna 4":  {"Alfonso López", "San Bosco", "Floralia", "Álvaro García Real"},
			"Comuna 5":  {"Camilo Torres", "Las Palmas", "Antonio Nariño", "República de Israel"},
			"Comuna 6":  {"El Rodeo", "San Luis", "León XIII", "Ulpiano Lloreda"},
			"Comuna 7":  {"Aguablanca", "La Flora", "El Rosario", "Las Granjas"},
			"Comuna 8":  {"Petecuy", "Villa del Lago", "Los Chorros", "Villanueva"},
			"Comuna 9":  {"Aranjuez", "Versalles", "Centenario", "Granada"},
			"Comuna 10": {"Bretaña", "El Guabal", "San Antonio", "Sindical"},
			"Comuna 11": {"Guayaquil", "Santa Elena", "Pueblo Joven", "San Pascual"},
			"Comuna 12": {"Doce de Octubre", "Poblado Campestre", "Los Libertadores"},
			"Comuna 13": {"Siloé", "Lleras Camargo", "Belisario Caicedo"},
			"Comuna 14": {"Polvorines", "El Refugio", "Los Alcázares"},
			"Comuna 15": {"El Poblado", "Los Farallones", "Montebello"},
			"Comuna 16": {"Valle Grande", "Los Chorros", "Ciudad Los Alamos"},
			"Comuna 17": {"Ciudad Jardín", "Bosques del Limonar", "El Limonar"},
			"Comuna 18": {"Meléndez", "Ciudad Capri", "Los Andes"},
			"Comuna 19": {"El Ingenio", "Pance", "Los Farallones"},
			"Comuna 20": {"Siloé", "Los Chorros", "Golondrinas"},
			"Comuna 21": {"Ciudad Córdoba", "Pízamos", "Valle Grande"},
			"Comuna 22": {"Montebello", "Los Farallones", "Pance"},
		},
		Corregimientos: Hierarchy{
			"Andes":         {"Alto Aguacatal", "Bajo Aguacatal", "Campo Alegre"},
			"Buitrera":      {"La Buitrera", "Alto de las Flores", "El Brillante"},
			"Cañaveralejo":  {"Cañas Gordas", "El Chocho", "Los Mangos"},
			"Dapa":          {"El Danubio", "El Diamante", "Santa Helena"},
			"El Saladito":   {"El Saladito", "Saladito", "El Salado"},
			"Felidia":       {"Filipinas", "El Topacio", "La Castellana"},
			"Golondrinas":   {"Golondrinas", "Las Brisas", "Alto del Rey"},
			"Hormiguero":    {"El Hormiguero", "El Banqueo", "Buchitolo"},
			"La Castilla":   {"La Castilla", "La Guardia", "San Jorge"},
			"La Elvira":     {"La Elvira", "Buenos Aires", "El Carmelo"},
			"La Leonera":    {"La Leonera", "La Palomera", "San Antonio de Pichindé"},
			"La Paz":        {"La Paz", "Las Nieves", "Santa Rosa"},
			"Los Alpes":     {"Los Alpes", "Miravalle", "Loma de la Cruz"},
			"Montebello":    {"Montebello", "El Vínculo", "Playa Rica"},
			"Navarro":       {"Caldono", "Chicoral", "El Rosal"},
			"Pance":         {"Pico de Loro", "Pico de Oro", "Villa Carmelo"},
			"Pichindé":      {"Pichindé", "San Pablo", "Tinajas"},
			"Santa Lucía":   {"Santa Lucía", "El Pencil", "Villa Colombia"},
			"Villa Carmelo": {"Villa Carmelo", "Pueblo Nuevo", "San Francisco"},
		},
		Categories: Hierarchy{
			"Invertir para crecer": {"Sanar heridas del pasado", "Cali al futuro", "Motores estratégicos de desarrollo"},
			"Seguridad":            {"Lucha contra el terrorismo", "Orden Vial"},
		},
	}
}
