// Package markup holds every selector and label vocabulary the scraper
// matches against. The target site changes its front-end without notice,
// so all of it is data, overridable from the config file.
package markup

// Markup describes how the scheduling site renders its controls.
type Markup struct {
	// Intro-flow vocabularies, matched case-insensitively as substrings.
	Cookies     []string `yaml:"cookies"`
	EntryPoints []string `yaml:"entry_points"`
	Advance     []string `yaml:"advance"`
	SeenBefore  []string `yaml:"seen_before"`
	NewPatient  []string `yaml:"new_patient"`
	Optional    []string `yaml:"optional"`
	No          string   `yaml:"no"`

	// Calendar controls.
	NextMonth         []string `yaml:"next_month"`          // selectors, ranked
	NextMonthLabels   []string `yaml:"next_month_labels"`   // aria-label/text fallback
	DayControl        string   `yaml:"day_control"`         // selector for day buttons
	DisabledClasses   []string `yaml:"disabled_classes"`    // class markers of disabled controls
	OutsideMonthClass string   `yaml:"outside_month_class"` // class of days spilling from adjacent months
	Header            []string `yaml:"header"`              // selectors for the month/year label, ranked

	// Slot panel.
	SlotPanel    string   `yaml:"slot_panel"`
	Tabs         string   `yaml:"tabs"`
	TabLabels    []string `yaml:"tab_labels"` // morning, afternoon, evening, in that order
	SlotBox      string   `yaml:"slot_box"`
	SlotTime     string   `yaml:"slot_time"`
	SlotProvider string   `yaml:"slot_provider"`
	FlatScan     string   `yaml:"flat_scan"`
}

// Default returns the vocabulary for the MUI-based scheduling widget.
func Default() Markup {
	return Markup{
		Cookies:     []string{"accept all cookies", "accept all", "accept", "i agree", "got it", "allow all"},
		EntryPoints: []string{"eye exam", "comprehensive eye exam", "comprehensive exam", "schedule exam", "book now"},
		Advance:     []string{"continue", "next", "proceed", "start", "get started", "schedule", "confirm"},
		SeenBefore:  []string{"been seen", "returning patient", "seen us before", "visited before"},
		NewPatient:  []string{"i am a new patient", "new patient"},
		Optional:    []string{"skip", "not now", "i don't know", "i dont know"},
		No:          "no",

		NextMonth: []string{
			"button[aria-label='Go to next month']",
			"button[aria-label*='next month' i]",
			"button:has(svg[data-testid='ChevronRightIcon'])",
			"button:has(svg[data-testid='ArrowRightIcon'])",
		},
		NextMonthLabels:   []string{"next month", "go to next month"},
		DayControl:        "button.MuiButtonBase-root, button.MuiPickersDay-root, [role='gridcell'] button",
		DisabledClasses:   []string{"Mui-disabled"},
		OutsideMonthClass: "MuiPickersDay-dayOutsideMonth",
		Header: []string{
			"[class*='CalendarHeader'] [class*='Typography']",
			"div.MuiPickersCalendarHeader-label",
			"h6[class*='MuiTypography']",
			"[role='presentation'][aria-live]",
		},

		SlotPanel:    ".aptm-box",
		Tabs:         "div.aptm-tab-layout",
		TabLabels:    []string{"MORNING", "AFTERNOON", "EVENING"},
		SlotBox:      ".aptm-box",
		SlotTime:     ".aptm-cell-text-time",
		SlotProvider: ".aptm-cell-text-provider",
		FlatScan:     "button, div, span",
	}
}

// Merge fills every empty field of m from def.
func (m Markup) Merge(def Markup) Markup {
	strs := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	str := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	strs(&m.Cookies, def.Cookies)
	strs(&m.EntryPoints, def.EntryPoints)
	strs(&m.Advance, def.Advance)
	strs(&m.SeenBefore, def.SeenBefore)
	strs(&m.NewPatient, def.NewPatient)
	strs(&m.Optional, def.Optional)
	str(&m.No, def.No)
	strs(&m.NextMonth, def.NextMonth)
	strs(&m.NextMonthLabels, def.NextMonthLabels)
	str(&m.DayControl, def.DayControl)
	strs(&m.DisabledClasses, def.DisabledClasses)
	str(&m.OutsideMonthClass, def.OutsideMonthClass)
	strs(&m.Header, def.Header)
	str(&m.SlotPanel, def.SlotPanel)
	str(&m.Tabs, def.Tabs)
	strs(&m.TabLabels, def.TabLabels)
	str(&m.SlotBox, def.SlotBox)
	str(&m.SlotTime, def.SlotTime)
	str(&m.SlotProvider, def.SlotProvider)
	str(&m.FlatScan, def.FlatScan)
	return m
}
