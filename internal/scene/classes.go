package scene

var classNames = map[string]string{
	"vehicle":            "Vehicle",
	"car":                "Car",
	"truck":              "Truck",
	"bus":                "Bus",
	"human":              "Human",
	"human_head":         "Head",
	"face":               "Head",
	"human_face":         "Head",
	"motorcycle_bicycle": "Bike",
	"bag":                "Bag",
	"animal":             "Animal",
	"license_plate":      "LicensePlate",
}

// TranslateClass maps a raw detector label to its display name. Unknown
// labels are returned unchanged.
func TranslateClass(raw string) string {
	if name, ok := classNames[raw]; ok {
		return name
	}
	return raw
}
