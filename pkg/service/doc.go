// Package service ties the protocol packages into a running device.
//
// # DeviceService
//
// DeviceService boots a device the way its firmware does:
//   - write the default password the first time the device starts
//   - generate the device ID once
//   - decide the operating mode, restoring the default password when a
//     non-default password is found without Wi-Fi credentials
//   - bring up the access point (Provisioning) or join the stored network
//     (Control)
//   - start the HTTP transport and, in Control mode, advertise via mDNS
//
// A failed Control mode association is logged and reported as an event; the
// service keeps serving on whatever network it has.
//
// Restart and reset-to-default requests end the life of a service. After
// the response was flushed the service erases state if asked, then signals
// the owner on Restarts(). The owner stops the service and boots a new one.
//
// Example usage:
//
//	store, _ := persistence.NewStore(persistence.NewFileBackend("device.state"))
//	config := service.DefaultDeviceConfig()
//	config.DeviceType = "lamp"
//
//	svc, err := service.NewDeviceService(store, radio, actions, config)
//	svc.Start(ctx)
//	<-svc.Restarts()
//	svc.Stop(ctx)
package service
