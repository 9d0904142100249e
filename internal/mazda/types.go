package mazda

import "time"

// Vehicle identifies one car on the account.
type Vehicle struct {
	ID          string `json:"id"`
	VIN         string `json:"vin"`
	Nickname    string `json:"nickname"`
	ModelYear   string `json:"modelYear"`
	CarlineName string `json:"carlineName"`
	IsElectric  bool   `json:"isElectric"`
}

// DisplayName returns the nickname when set, otherwise model year and
// carline.
func (v Vehicle) DisplayName() string {
	if v.Nickname != "" {
		return v.Nickname
	}
	return v.ModelYear + " " + v.CarlineName
}

// DoorStatus holds the open/closed flags reported by the vehicle.
type DoorStatus struct {
	DriverOpen    bool `json:"driverOpen"`
	PassengerOpen bool `json:"passengerOpen"`
	RearLeftOpen  bool `json:"rearLeftOpen"`
	RearRightOpen bool `json:"rearRightOpen"`
	TrunkOpen     bool `json:"trunkOpen"`
	HoodOpen      bool `json:"hoodOpen"`
	FuelLidOpen   bool `json:"fuelLidOpen"`
}

// LockStatus holds the per-door lock flags.
type LockStatus struct {
	DriverUnlocked    bool `json:"driverUnlocked"`
	PassengerUnlocked bool `json:"passengerUnlocked"`
	RearLeftUnlocked  bool `json:"rearLeftUnlocked"`
	RearRightUnlocked bool `json:"rearRightUnlocked"`
}

// AnyUnlocked reports whether at least one door is unlocked.
func (l LockStatus) AnyUnlocked() bool {
	return l.DriverUnlocked || l.PassengerUnlocked || l.RearLeftUnlocked || l.RearRightUnlocked
}

// WindowStatus holds the window position flags.
type WindowStatus struct {
	DriverOpen    bool `json:"driverOpen"`
	PassengerOpen bool `json:"passengerOpen"`
	RearLeftOpen  bool `json:"rearLeftOpen"`
	RearRightOpen bool `json:"rearRightOpen"`
}

// TirePressure holds the TPMS readings in psi. Zero means not reported.
type TirePressure struct {
	FrontLeftPsi  float64 `json:"frontLeftPsi"`
	FrontRightPsi float64 `json:"frontRightPsi"`
	RearLeftPsi   float64 `json:"rearLeftPsi"`
	RearRightPsi  float64 `json:"rearRightPsi"`
}

// StatusSnapshot is a full capture of the lightweight vehicle state at
// poll time. Snapshots are written once and replaced whole.
type StatusSnapshot struct {
	VehicleID               string       `json:"vehicleId"`
	FuelRemainingPercent    float64      `json:"fuelRemainingPercent"`
	FuelDistanceRemainingKm float64      `json:"fuelDistanceRemainingKm"`
	OdometerKm              float64      `json:"odometerKm"`
	Latitude                float64      `json:"latitude"`
	Longitude               float64      `json:"longitude"`
	PositionTimestamp       time.Time    `json:"positionTimestamp"`
	Doors                   DoorStatus   `json:"doors"`
	Locks                   LockStatus   `json:"locks"`
	Windows                 WindowStatus `json:"windows"`
	HazardLightsOn          bool         `json:"hazardLightsOn"`
	UpdatedAt               time.Time    `json:"updatedAt"`
	FetchedAt               time.Time    `json:"fetchedAt"`
}

// HealthSnapshot is a full capture of the heavier maintenance data,
// refreshed on its own cadence.
type HealthSnapshot struct {
	VehicleID               string       `json:"vehicleId"`
	RemainingOilKm          float64      `json:"remainingOilKm"`
	OilDeteriorationWarning bool         `json:"oilDeteriorationWarning"`
	OilLevelWarning         bool         `json:"oilLevelWarning"`
	BatteryChargePercent    float64      `json:"batteryChargePercent"`
	BatteryWarning          bool         `json:"batteryWarning"`
	TirePressure            TirePressure `json:"tirePressure"`
	TPMSWarning             bool         `json:"tpmsWarning"`
	ServiceDueDistanceKm    float64      `json:"serviceDueDistanceKm"`
	ReportDate              time.Time    `json:"reportDate"`
	FetchedAt               time.Time    `json:"fetchedAt"`
}

// ChargeInfo is the battery and charging portion of an EV snapshot.
type ChargeInfo struct {
	BatteryLevelPercent    float64 `json:"batteryLevelPercent"`
	DrivingRangeKm         float64 `json:"drivingRangeKm"`
	DrivingRangeBEVKm      float64 `json:"drivingRangeBevKm"`
	PluggedIn              bool    `json:"pluggedIn"`
	Charging               bool    `json:"charging"`
	BasicChargeTimeMinutes float64 `json:"basicChargeTimeMinutes"`
	QuickChargeTimeMinutes float64 `json:"quickChargeTimeMinutes"`
	BatteryHeaterAuto      bool    `json:"batteryHeaterAuto"`
	BatteryHeaterOn        bool    `json:"batteryHeaterOn"`
}

// HVACInfo is the cabin climate portion of an EV snapshot.
type HVACInfo struct {
	HVACOn                     bool    `json:"hvacOn"`
	FrontDefroster             bool    `json:"frontDefroster"`
	RearDefroster              bool    `json:"rearDefroster"`
	InteriorTemperatureCelsius float64 `json:"interiorTemperatureCelsius"`
}

// EVSnapshot captures the battery, charging and climate state of an
// electric vehicle. Like the other snapshots it is written once and
// replaced whole.
type EVSnapshot struct {
	VehicleID string     `json:"vehicleId"`
	Charge    ChargeInfo `json:"charge"`
	HVAC      HVACInfo   `json:"hvac"`
	UpdatedAt time.Time  `json:"updatedAt"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

// CommandKind enumerates the remote commands the bridge can issue.
type CommandKind string

const (
	CommandLockDoors       CommandKind = "lock_doors"
	CommandUnlockDoors     CommandKind = "unlock_doors"
	CommandStartEngine     CommandKind = "start_engine"
	CommandStopEngine      CommandKind = "stop_engine"
	CommandHazardLightsOn  CommandKind = "hazard_lights_on"
	CommandHazardLightsOff CommandKind = "hazard_lights_off"
	CommandSendPOI         CommandKind = "send_poi"
	CommandStartCharging   CommandKind = "start_charging"
	CommandStopCharging    CommandKind = "stop_charging"
	CommandHVACOn          CommandKind = "hvac_on"
	CommandHVACOff         CommandKind = "hvac_off"
)

// Valid reports whether k is one of the known command kinds.
func (k CommandKind) Valid() bool {
	switch k {
	case CommandLockDoors, CommandUnlockDoors, CommandStartEngine, CommandStopEngine,
		CommandHazardLightsOn, CommandHazardLightsOff, CommandSendPOI,
		CommandStartCharging, CommandStopCharging, CommandHVACOn, CommandHVACOff:
		return true
	}
	return false
}

// ElectricOnly reports whether the command applies only to electric
// vehicles.
func (k CommandKind) ElectricOnly() bool {
	switch k {
	case CommandStartCharging, CommandStopCharging, CommandHVACOn, CommandHVACOff:
		return true
	}
	return false
}

// CommandState is the last known real-world completion state of a
// dispatched command. API-level acceptance only ever yields pending or
// unknown; succeeded and failed come from the command status endpoint.
type CommandState string

const (
	CommandStateUnknown   CommandState = "unknown"
	CommandStatePending   CommandState = "pending"
	CommandStateSucceeded CommandState = "succeeded"
	CommandStateFailed    CommandState = "failed"
)

// POI is the destination payload for the send_poi command.
type POI struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}
