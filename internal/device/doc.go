// Package device is the device directory for Smart Watering Core.
//
// A device is either a sensor, which reports readings, or an actuator, which
// receives commands on its configured topic. The directory answers two
// questions for the rule engine: who owns a device and where its commands
// go. It also records each device's last commanded status.
//
//	┌──────────────┐   GetDevice / SetDeviceStatus   ┌────────────────────┐
//	│  automation  │ ──────────────────────────────▶ │      Registry      │
//	│  dispatcher  │                                 │  cache (RWMutex)   │
//	└──────────────┘                                 └─────────┬──────────┘
//	                                                           │
//	                                                 ┌─────────▼──────────┐
//	                                                 │  SQLiteRepository  │
//	                                                 │   (devices table)  │
//	                                                 └────────────────────┘
//
// Status is last-write-wins: concurrent commands to one device leave
// whichever write landed last.
//
// Usage:
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db))
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	pump, err := registry.GetOwnedDevice(ctx, ownerID, "pump-1")
package device
