package sim

import "github.com/flightlink/copter-actor/internal/driver"

// modes lists the flight modes each vehicle family accepts, keyed by qualified name.
var modes = map[int]map[string]string{
	driver.DroneTypeCopter: {
		"COPTER_STABILIZE": "Stabilize",
		"COPTER_ACRO":      "Acro",
		"COPTER_ALT_HOLD":  "Alt Hold",
		"COPTER_AUTO":      "Auto",
		"COPTER_GUIDED":    "Guided",
		"COPTER_LOITER":    "Loiter",
		"COPTER_RTL":       "RTL",
		"COPTER_CIRCLE":    "Circle",
		"COPTER_LAND":      "Land",
		"COPTER_DRIFT":     "Drift",
		"COPTER_SPORT":     "Sport",
		"COPTER_POSHOLD":   "PosHold",
		"COPTER_BRAKE":     "Brake",
	},
	driver.DroneTypePlane: {
		"PLANE_MANUAL":        "Manual",
		"PLANE_CIRCLE":        "Circle",
		"PLANE_STABILIZE":     "Stabilize",
		"PLANE_FLY_BY_WIRE_A": "FBW A",
		"PLANE_FLY_BY_WIRE_B": "FBW B",
		"PLANE_AUTO":          "Auto",
		"PLANE_RTL":           "RTL",
		"PLANE_LOITER":        "Loiter",
		"PLANE_GUIDED":        "Guided",
	},
	driver.DroneTypeRover: {
		"ROVER_MANUAL":   "Manual",
		"ROVER_LEARNING": "Learning",
		"ROVER_STEERING": "Steering",
		"ROVER_HOLD":     "Hold",
		"ROVER_AUTO":     "Auto",
		"ROVER_RTL":      "RTL",
		"ROVER_GUIDED":   "Guided",
	},
}

var familyPrefixes = map[int]string{
	driver.DroneTypeCopter: "COPTER_",
	driver.DroneTypePlane:  "PLANE_",
	driver.DroneTypeRover:  "ROVER_",
}

// initialModes is the mode a family reports right after connecting.
var initialModes = map[int]string{
	driver.DroneTypeCopter: "COPTER_STABILIZE",
	driver.DroneTypePlane:  "PLANE_MANUAL",
	driver.DroneTypeRover:  "ROVER_MANUAL",
}

func lookupMode(droneType int, name string) (driver.Mode, bool) {
	label, ok := modes[droneType][name]
	if !ok {
		return driver.Mode{}, false
	}
	return driver.Mode{Name: name, Label: label}, true
}

// familyMode resolves a family-independent mode suffix such as "AUTO".
func familyMode(droneType int, suffix string) (driver.Mode, bool) {
	return lookupMode(droneType, familyPrefixes[droneType]+suffix)
}
