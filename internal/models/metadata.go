package models

import "time"

// Metadata is the production evidence attached to a credit. Its keccak-256
// hash is anchored on the ledger.
type Metadata struct {
	ProductionFacility  ProductionFacility  `json:"productionFacility"`
	ProductionDetails   ProductionDetails   `json:"productionDetails"`
	EnvironmentalImpact EnvironmentalImpact `json:"environmentalImpact"`
	QualityMetrics      QualityMetrics      `json:"qualityMetrics"`
	Documentation       Documentation       `json:"documentation"`
}

type Location struct {
	Latitude  float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Address   string  `json:"address,omitempty"`
}

type ProductionFacility struct {
	Name       string   `json:"name" validate:"required"`
	Location   Location `json:"location"`
	Capacity   float64  `json:"capacity,omitempty" validate:"omitempty,gt=0"`
	Efficiency float64  `json:"efficiency,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type ProductionDetails struct {
	StartDate                 time.Time `json:"startDate" validate:"required"`
	EndDate                   time.Time `json:"endDate" validate:"required,gtefield=StartDate"`
	TotalEnergyConsumed       float64   `json:"totalEnergyConsumed,omitempty" validate:"omitempty,gt=0"`
	RenewableEnergyPercentage float64   `json:"renewableEnergyPercentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	CarbonIntensity           float64   `json:"carbonIntensity,omitempty" validate:"omitempty,gt=0"`
	CertificationStandards    []string  `json:"certificationStandards,omitempty"`
}

type EnvironmentalImpact struct {
	CO2Avoided float64 `json:"co2Avoided,omitempty" validate:"omitempty,gt=0"`
	WaterSaved float64 `json:"waterSaved,omitempty" validate:"omitempty,gt=0"`
	LandUse    float64 `json:"landUse,omitempty" validate:"omitempty,gt=0"`
}

type QualityMetrics struct {
	Purity       float64  `json:"purity,omitempty" validate:"omitempty,gte=0,lte=100"`
	Pressure     float64  `json:"pressure,omitempty" validate:"omitempty,gt=0"`
	Temperature  float64  `json:"temperature,omitempty"`
	Contaminants []string `json:"contaminants,omitempty"`
}

type Certificate struct {
	Name       string     `json:"name,omitempty"`
	Issuer     string     `json:"issuer,omitempty"`
	IssueDate  *time.Time `json:"issueDate,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	FileHash   string     `json:"fileHash,omitempty"`
}

type Report struct {
	Title    string     `json:"title,omitempty"`
	Type     string     `json:"type,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	FileHash string     `json:"fileHash,omitempty"`
}

type Documentation struct {
	Certificates []Certificate `json:"certificates,omitempty" validate:"omitempty,dive"`
	Reports      []Report      `json:"reports,omitempty" validate:"omitempty,dive"`
}
