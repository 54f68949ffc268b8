package models

// Aptitude is one of the seven BAT-7 scored dimensions.
type Aptitude struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	TestID string `json:"test_id"`
}

// Aptitudes lists the battery in administration order.
var Aptitudes = []Aptitude{
	{Code: "V", Name: "Verbal", TestID: "verbal"},
	{Code: "E", Name: "Espacial", TestID: "espacial"},
	{Code: "A", Name: "Atención", TestID: "atencion"},
	{Code: "R", Name: "Razonamiento", TestID: "razonamiento"},
	{Code: "N", Name: "Numérico", TestID: "numerico"},
	{Code: "M", Name: "Mecánico", TestID: "mecanico"},
	{Code: "O", Name: "Ortografía", TestID: "ortografia"},
}

// TotalTests is the number of tests in a full battery.
var TotalTests = len(Aptitudes)

// AptitudeByCode finds an aptitude by its letter code.
func AptitudeByCode(code string) (Aptitude, bool) {
	for _, a := range Aptitudes {
		if a.Code == code {
			return a, true
		}
	}
	return Aptitude{}, false
}

// AptitudeByTestID finds an aptitude by its test id.
func AptitudeByTestID(testID string) (Aptitude, bool) {
	for _, a := range Aptitudes {
		if a.TestID == testID {
			return a, true
		}
	}
	return Aptitude{}, false
}
