package mazda

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Wire shapes for the raw status payloads. Field names follow the
// upstream API exactly; everything outside this file works with the
// parsed snapshot types.

type alertInfo struct {
	OccurrenceDate string `json:"OccurrenceDate"`
	Door           struct {
		DrStatDrv         int `json:"DrStatDrv"`
		DrStatPsngr       int `json:"DrStatPsngr"`
		DrStatRl          int `json:"DrStatRl"`
		DrStatRr          int `json:"DrStatRr"`
		DrStatTrnkLg      int `json:"DrStatTrnkLg"`
		DrStatHood        int `json:"DrStatHood"`
		FuelLidOpenStatus int `json:"FuelLidOpenStatus"`
		LockLinkSwDrv     int `json:"LockLinkSwDrv"`
		LockLinkSwPsngr   int `json:"LockLinkSwPsngr"`
		LockLinkSwRl      int `json:"LockLinkSwRl"`
		LockLinkSwRr      int `json:"LockLinkSwRr"`
	} `json:"Door"`
	Pw struct {
		PwPosDrv   int `json:"PwPosDrv"`
		PwPosPsngr int `json:"PwPosPsngr"`
		PwPosRl    int `json:"PwPosRl"`
		PwPosRr    int `json:"PwPosRr"`
	} `json:"Pw"`
	HazardLamp struct {
		HazardSw int `json:"HazardSw"`
	} `json:"HazardLamp"`
}

type remoteInfo struct {
	OccurrenceDate string `json:"OccurrenceDate"`
	PositionInfo   struct {
		Latitude            float64 `json:"Latitude"`
		LatitudeFlag        int     `json:"LatitudeFlag"`
		Longitude           float64 `json:"Longitude"`
		LongitudeFlag       int     `json:"LongitudeFlag"`
		AcquisitionDatetime string  `json:"AcquisitionDatetime"`
	} `json:"PositionInfo"`
	ResidualFuel struct {
		FuelSegementDActl float64 `json:"FuelSegementDActl"`
		RemDrvDistDActlKm float64 `json:"RemDrvDistDActlKm"`
	} `json:"ResidualFuel"`
	DriveInformation struct {
		OdoDispValue float64 `json:"OdoDispValue"`
	} `json:"DriveInformation"`
	TPMSInformation struct {
		FLTPrsDispPsi float64 `json:"FLTPrsDispPsi"`
		FRTPrsDispPsi float64 `json:"FRTPrsDispPsi"`
		RLTPrsDispPsi float64 `json:"RLTPrsDispPsi"`
		RRTPrsDispPsi float64 `json:"RRTPrsDispPsi"`
		TPMSStatus    int     `json:"TPMSStatus"`
	} `json:"TPMSInformation"`
	OilMntInformation struct {
		RemOilDistK           float64 `json:"RemOilDistK"`
		OilDeteriorateWarning int     `json:"OilDeteriorateWarning"`
		OilLevelWarning       int     `json:"OilLevelWarning"`
	} `json:"OilMntInformation"`
	RegularMntInformation struct {
		MntSetDistKm float64 `json:"MntSetDistKm"`
	} `json:"RegularMntInformation"`
	BatteryStatus struct {
		SocDispValue       float64 `json:"SocDispValue"`
		DeteriorateWarning int     `json:"DeteriorateWarning"`
	} `json:"BatteryStatus"`
}

type evResultData struct {
	OccurrenceDate   string `json:"OccurrenceDate"`
	PlusBInformation struct {
		VehicleInfo struct {
			ChargeInfo struct {
				SmaphSOC                float64 `json:"SmaphSOC"`
				SmaphRemDrvDistKm       float64 `json:"SmaphRemDrvDistKm"`
				BatRemDrvDistKm         float64 `json:"BatRemDrvDistKm"`
				ChargerConnectorFitting int     `json:"ChargerConnectorFitting"`
				ChargeStatusSub         int     `json:"ChargeStatusSub"`
				MaxChargeMinuteAC       float64 `json:"MaxChargeMinuteAC"`
				MaxChargeMinuteQBC      float64 `json:"MaxChargeMinuteQBC"`
				CstmzStatBatHeatAutoSW  int     `json:"CstmzStatBatHeatAutoSW"`
				BatteryHeaterON         int     `json:"BatteryHeaterON"`
			} `json:"ChargeInfo"`
			RemoteHvacInfo struct {
				HVAC           int     `json:"HVAC"`
				FrontDefroster int     `json:"FrontDefroster"`
				RearDefogger   int     `json:"RearDefogger"`
				InCarTeDC      float64 `json:"InCarTeDC"`
			} `json:"RemoteHvacInfo"`
		} `json:"VehicleInfo"`
	} `json:"PlusBInformation"`
}

// mazdaTimeLayout is the upstream timestamp format, always UTC.
const mazdaTimeLayout = "20060102150405"

func parseMazdaTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(mazdaTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// signedCoordinate applies the hemisphere flag the API uses instead of a
// sign bit. Latitude is negated when its flag is set; longitude is
// negated when its flag is clear.
func signedCoordinate(value float64, flag int, negateWhenSet bool) float64 {
	set := flag == 1
	if set == negateWhenSet {
		return -value
	}
	return value
}

func parseStatus(vehicleID string, alert alertInfo, remote remoteInfo) StatusSnapshot {
	return StatusSnapshot{
		VehicleID:               vehicleID,
		FuelRemainingPercent:    remote.ResidualFuel.FuelSegementDActl,
		FuelDistanceRemainingKm: remote.ResidualFuel.RemDrvDistDActlKm,
		OdometerKm:              remote.DriveInformation.OdoDispValue,
		Latitude:                signedCoordinate(remote.PositionInfo.Latitude, remote.PositionInfo.LatitudeFlag, true),
		Longitude:               signedCoordinate(remote.PositionInfo.Longitude, remote.PositionInfo.LongitudeFlag, false),
		PositionTimestamp:       parseMazdaTime(remote.PositionInfo.AcquisitionDatetime),
		Doors: DoorStatus{
			DriverOpen:    alert.Door.DrStatDrv == 1,
			PassengerOpen: alert.Door.DrStatPsngr == 1,
			RearLeftOpen:  alert.Door.DrStatRl == 1,
			RearRightOpen: alert.Door.DrStatRr == 1,
			TrunkOpen:     alert.Door.DrStatTrnkLg == 1,
			HoodOpen:      alert.Door.DrStatHood == 1,
			FuelLidOpen:   alert.Door.FuelLidOpenStatus == 1,
		},
		Locks: LockStatus{
			DriverUnlocked:    alert.Door.LockLinkSwDrv == 1,
			PassengerUnlocked: alert.Door.LockLinkSwPsngr == 1,
			RearLeftUnlocked:  alert.Door.LockLinkSwRl == 1,
			RearRightUnlocked: alert.Door.LockLinkSwRr == 1,
		},
		Windows: WindowStatus{
			DriverOpen:    alert.Pw.PwPosDrv == 1,
			PassengerOpen: alert.Pw.PwPosPsngr == 1,
			RearLeftOpen:  alert.Pw.PwPosRl == 1,
			RearRightOpen: alert.Pw.PwPosRr == 1,
		},
		HazardLightsOn: alert.HazardLamp.HazardSw == 1,
		UpdatedAt:      parseMazdaTime(alert.OccurrenceDate),
		FetchedAt:      time.Now().UTC(),
	}
}

func parseHealth(vehicleID string, remote remoteInfo) HealthSnapshot {
	return HealthSnapshot{
		VehicleID:               vehicleID,
		RemainingOilKm:          remote.OilMntInformation.RemOilDistK,
		OilDeteriorationWarning: remote.OilMntInformation.OilDeteriorateWarning == 1,
		OilLevelWarning:         remote.OilMntInformation.OilLevelWarning == 1,
		BatteryChargePercent:    remote.BatteryStatus.SocDispValue,
		BatteryWarning:          remote.BatteryStatus.DeteriorateWarning == 1,
		TirePressure: TirePressure{
			FrontLeftPsi:  remote.TPMSInformation.FLTPrsDispPsi,
			FrontRightPsi: remote.TPMSInformation.FRTPrsDispPsi,
			RearLeftPsi:   remote.TPMSInformation.RLTPrsDispPsi,
			RearRightPsi:  remote.TPMSInformation.RRTPrsDispPsi,
		},
		TPMSWarning:          remote.TPMSInformation.TPMSStatus == 1,
		ServiceDueDistanceKm: remote.RegularMntInformation.MntSetDistKm,
		ReportDate:           parseMazdaTime(remote.OccurrenceDate),
		FetchedAt:            time.Now().UTC(),
	}
}

func parseEV(vehicleID string, data evResultData) EVSnapshot {
	charge := data.PlusBInformation.VehicleInfo.ChargeInfo
	hvac := data.PlusBInformation.VehicleInfo.RemoteHvacInfo
	return EVSnapshot{
		VehicleID: vehicleID,
		Charge: ChargeInfo{
			BatteryLevelPercent:    charge.SmaphSOC,
			DrivingRangeKm:         charge.SmaphRemDrvDistKm,
			DrivingRangeBEVKm:      charge.BatRemDrvDistKm,
			PluggedIn:              charge.ChargerConnectorFitting == 1,
			Charging:               charge.ChargeStatusSub == 6,
			BasicChargeTimeMinutes: charge.MaxChargeMinuteAC,
			QuickChargeTimeMinutes: charge.MaxChargeMinuteQBC,
			BatteryHeaterAuto:      charge.CstmzStatBatHeatAutoSW == 1,
			BatteryHeaterOn:        charge.BatteryHeaterON == 1,
		},
		HVAC: HVACInfo{
			HVACOn:                     hvac.HVAC == 1,
			FrontDefroster:             hvac.FrontDefroster == 1,
			RearDefroster:              hvac.RearDefogger == 1,
			InteriorTemperatureCelsius: hvac.InCarTeDC,
		},
		UpdatedAt: parseMazdaTime(data.OccurrenceDate),
		FetchedAt: time.Now().UTC(),
	}
}

// poiPlacemark builds the placemark payload for send_poi. The PoiId is a
// digest of the destination, matching how the mobile app derives it.
func poiPlacemark(poi POI) map[string]any {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s%v%v", poi.Name, poi.Latitude, poi.Longitude)))
	latFlag, lonFlag := 0, 0
	if poi.Latitude < 0 {
		latFlag = 1
	}
	if poi.Longitude >= 0 {
		lonFlag = 1
	}
	return map[string]any{
		"Altitude":         0,
		"Latitude":         abs(poi.Latitude),
		"LatitudeFlag":     latFlag,
		"Longitude":        abs(poi.Longitude),
		"LongitudeFlag":    lonFlag,
		"Name":             poi.Name,
		"OtherInformation": "{}",
		"PoiId":            hex.EncodeToString(sum[:])[:10],
		"source":           "google",
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
