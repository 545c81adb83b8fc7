// Package system wires the CPU, physical memory and devices into a
// bootable machine and drives the execution loop.
package system

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MachineConfig is a YAML machine description, an alternative to
// passing everything on the command line.
//
// Example:
//
//	kernel: images/kernel.img
//	initrd: images/rootfs.cpio
//	ram_mb: 128
//	cmdline: "console=ttyS0 rdinit=/sbin/init"
//	share: /srv/guest
type MachineConfig struct {
	// Kernel is the path to the kernel image.
	Kernel string `yaml:"kernel"`
	// Initrd is the path to an optional initrd image.
	Initrd string `yaml:"initrd"`
	// RAMSizeMB is the RAM size in MiB; zero means the default.
	RAMSizeMB uint32 `yaml:"ram_mb"`
	// Cmdline is the kernel command line.
	Cmdline string `yaml:"cmdline"`
	// Share names a host directory for VirtIO-9P. When set, the transport
	// advertises the mount tag "hostshare"; the directory's files are not
	// served to the guest.
	Share string `yaml:"share"`
}

// LoadMachineConfig parses a YAML machine description from disk.
func LoadMachineConfig(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine config: %w", err)
	}

	var cfg MachineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse machine config: %w", err)
	}
	return &cfg, nil
}
