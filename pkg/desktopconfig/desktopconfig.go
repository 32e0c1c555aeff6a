/*
Copyright © 2022 - 2024 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package desktopconfig maps an InstallerConfig's desktop/display-manager/
// design choices onto package sets, services, and target-root file edits.
package desktopconfig

import (
	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/types"
)

// PackageSet bundles what a choice (desktop, display manager, or design)
// contributes to the base install: packages to add, services to enable
// post-install, and keys to patch into configuration.nix on the Nix base.
type PackageSet struct {
	Packages    []string
	Services    []string
	NixSettings map[string]string
}

func (p *PackageSet) addPackages(pkgs ...string) { p.Packages = append(p.Packages, pkgs...) }
func (p *PackageSet) addServices(svcs ...string)  { p.Services = append(p.Services, svcs...) }
func (p *PackageSet) setNix(key, value string) {
	if p.NixSettings == nil {
		p.NixSettings = map[string]string{}
	}
	p.NixSettings[key] = value
}

// merge folds other's contents into p.
func (p *PackageSet) merge(other PackageSet) {
	p.Packages = append(p.Packages, other.Packages...)
	p.Services = append(p.Services, other.Services...)
	for k, v := range other.NixSettings {
		p.setNix(k, v)
	}
}

// Build assembles the full desktop/display-manager/design package set for
// cfg, to be folded into the base install alongside hardware-probe results.
func Build(cfg *types.InstallerConfig, onNix bool) PackageSet {
	var set PackageSet
	set.merge(desktopPackages(cfg.Desktop, onNix))
	set.merge(dmPackages(cfg.DisplayManager, onNix))
	set.merge(designPackages(cfg.DisplayManager, cfg.Design, onNix))
	return set
}

// desktopPackages mirrors install_desktop_setup's per-variant package lists,
// with one case per desktop environment or standalone window manager.
func desktopPackages(desktop string, onNix bool) PackageSet {
	var set PackageSet
	switch desktop {
	case "Onyx":
		set.addPackages("xfce4", "xfce4-goodies", "onyx-themes", "lightdm")
	case "Gnome":
		set.addPackages("gnome", "gnome-tweaks", "gnome-shell-extensions")
	case "Kde":
		set.addPackages("plasma-meta", "kde-applications-meta")
	case "Budgie":
		set.addPackages("budgie-desktop")
	case "Cinnamon":
		set.addPackages("cinnamon", "cinnamon-translations")
	case "Mate":
		set.addPackages("mate", "mate-extra")
	case "XfceRefined", "XfcePicom":
		set.addPackages("xfce4", "xfce4-goodies", "picom")
	case "Enlightenment":
		set.addPackages("enlightenment", "terminology")
	case "Lxqt":
		set.addPackages("lxqt", "breeze-icons")
	case "Sway":
		set.addPackages("sway", "swaylock", "swayidle", "waybar")
	case "I3":
		set.addPackages("i3-wm", "i3status", "i3lock")
	case "Herbstluftwm":
		set.addPackages("herbstluftwm", "polybar")
	case "Awesome":
		set.addPackages("awesome", "vicious")
	case "Bspwm":
		set.addPackages("bspwm", "sxhkd", "polybar")
	case "Hyprland":
		set.addPackages("hyprland", "waybar", "xdg-desktop-portal-hyprland")
	case "None", "":
		return set
	}
	if onNix {
		set.setNix("desktop", desktopNixName(desktop))
	}
	return set
}

// desktopNixName lowercases the handful of names configuration.nix's
// `desktop =` key expects, matching the original Nix-fragment sed targets.
func desktopNixName(desktop string) string {
	switch desktop {
	case "XfceRefined", "XfcePicom":
		return "xfce"
	case "":
		return "none"
	default:
		return lowerFirst(desktop)
	}
}

func lowerFirst(s string) string {
	b := []byte(s)
	if len(b) > 0 && b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// dmPackages mirrors install_dm_setup.
func dmPackages(dm string, onNix bool) PackageSet {
	var set PackageSet
	switch dm {
	case "Gdm":
		set.addPackages("gdm")
		set.addServices("gdm")
	case "LightDMNeon":
		set.addPackages("lightdm", "lightdm-neon-greeter")
		set.addServices("lightdm")
	case "Sddm":
		set.addPackages("sddm")
		set.addServices("sddm")
	case "None", "":
		return set
	}
	if onNix {
		set.setNix("dmanager", dmNixName(dm))
	}
	return set
}

func dmNixName(dm string) string {
	switch dm {
	case "Gdm":
		return "gdm"
	case "LightDMNeon":
		return "lightdm"
	case "Sddm":
		return "sddm"
	default:
		return "none"
	}
}

// sddmThemeName maps a design choice to the theme identifier used both as
// sddm.conf.d's ConfigFile= value and configuration.nix's sddmtheme= value,
// mirroring the 1:1 correspondence the original's per-theme functions show.
var sddmThemeName = map[string]string{
	"Astronaut":       "astronaut",
	"Blackhole":        "black_hole",
	"Cyberpunk":        "cyberpunk",
	"Cyborg":           "japanese_aesthetic",
	"Jake":             "jake_the_dog",
	"Kath":             "hyprland_kath",
	"Pixelsakura":      "pixel_sakura",
	"Postapocalypse":   "post-apocalyptic_hacker",
	"Purpleleaves":     "purple_leaves",
}

// designPackages adds the sddm-qt theme package for the chosen design when
// the display manager is Sddm; other display managers carry no per-design
// theme package in the original.
func designPackages(dm, design string, onNix bool) PackageSet {
	var set PackageSet
	if dm != "Sddm" {
		return set
	}
	theme, ok := sddmThemeName[design]
	if !ok {
		return set
	}
	set.addPackages("sddm-theme-" + theme)
	if onNix {
		set.setNix("sddmtheme", theme)
	}
	return set
}

// ApplyDMConfig applies a chosen display manager's post-install
// configuration: session scaffolding for Sddm's theme, and, for LightDM,
// patching the desktop's session name into lightdm.conf.
func ApplyDMConfig(files *fileops.FileOps, cfg *types.InstallerConfig) error {
	switch cfg.DisplayManager {
	case "Sddm":
		return applySddmTheme(files, cfg.Design)
	case "LightDMNeon":
		return applyLightDMSession(files, cfg.Desktop)
	default:
		return nil
	}
}

func applySddmTheme(files *fileops.FileOps, design string) error {
	theme, ok := sddmThemeName[design]
	if !ok {
		return nil
	}
	confDir := constants.TargetRoot + "/etc/sddm.conf.d"
	if err := files.CreateDirectory(confDir); err != nil {
		return err
	}
	path := confDir + "/theme.conf"
	if err := files.CreateFile(path); err != nil {
		return err
	}
	return files.AppendFile(path, "[Theme]\nConfigFile="+theme)
}

func applyLightDMSession(files *fileops.FileOps, desktop string) error {
	if desktop == "" {
		return nil
	}
	session := lowerFirst(desktop)
	return files.SedFile(
		constants.TargetRoot+"/etc/lightdm/lightdm.conf",
		`(?m)^#?user-session=.*$`,
		"user-session="+session,
	)
}

// ApplyDesignConfig is a placeholder hook for design choices that affect
// neither package selection nor the display manager (wallpapers, icon
// packs); none of the currently supported designs need a separate apply
// step beyond ApplyDMConfig's sddm theme wiring.
func ApplyDesignConfig(_ *fileops.FileOps, _ *types.InstallerConfig) error {
	return nil
}

// disableWaylandSession renames desktop's wayland session file so the
// display manager falls back to its X11 session, matching
// disable_wsession's rename-to-.disable convention.
func disableWaylandSession(files *fileops.FileOps, session string) error {
	path := constants.TargetRoot + "/usr/share/wayland-sessions/" + session
	return files.RenameFile(path, path+".disable")
}

// ApplyDesktopConfig applies the chosen desktop's post-install
// configuration: Gnome, Cinnamon, Xfce and Hyprland each disable their
// Wayland session file so the display manager defaults to the X11 variant
// the rest of Athena's configuration assumes.
func ApplyDesktopConfig(files *fileops.FileOps, desktop string) error {
	var session string
	switch desktop {
	case "Gnome":
		session = "gnome.desktop"
	case "Cinnamon":
		session = "cinnamon.desktop"
	case "XfceRefined", "XfcePicom":
		session = "xfce.desktop"
	case "Hyprland":
		session = "hyprland.desktop"
	default:
		return nil
	}
	// A desktop without a wayland-sessions entry on disk (e.g. an X11-only
	// spin) isn't an install failure.
	_ = disableWaylandSession(files, session)
	return nil
}
