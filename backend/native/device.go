//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Device owns a HAL instance and an open logical device.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
	adapter  *HALAdapter
}

// OpenStandalone opens a Vulkan device, preferring a discrete or integrated
// GPU over software adapters.
func OpenStandalone() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan", ErrBackendUnavailable)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	return openExposed(instance, selected)
}

// OpenNoop opens the HAL noop device. Every call succeeds without touching
// a GPU, which makes it suitable for headless runs and tests.
func OpenNoop() (*Device, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	return openExposed(instance, &adapters[0])
}

func openExposed(instance hal.Instance, exposed *hal.ExposedAdapter) (*Device, error) {
	limits := gputypes.DefaultLimits()
	openDev, err := exposed.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	d := &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     exposed.Info.Name,
	}
	d.adapter = NewHALAdapter(d.device, d.queue, &limits)
	slogger().Info("native: GPU device opened", "adapter", d.name)
	return d, nil
}

// Name returns the adapter name reported by the driver.
func (d *Device) Name() string { return d.name }

// Adapter returns the gpucore adapter bound to this device.
func (d *Device) Adapter() *HALAdapter { return d.adapter }

// Close releases all adapter resources, then the device and instance.
// Close is safe to call multiple times.
func (d *Device) Close() {
	if d == nil || d.device == nil {
		return
	}
	d.adapter.Release()
	d.device.Destroy()
	d.instance.Destroy()
	d.device = nil
	slogger().Info("native: GPU device closed", "adapter", d.name)
}
