package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Pause      key.Binding
	SeekBack   key.Binding
	SeekFwd    key.Binding
	VolUp      key.Binding
	VolDown    key.Binding
	Slower     key.Binding
	Faster     key.Binding
	NextTrack  key.Binding
	PrevTrack  key.Binding
	BandNext   key.Binding
	BandPrev   key.Binding
	GainUp     key.Binding
	GainDown   key.Binding
	EQPreset   key.Binding
	FXPreset   key.Binding
	Reverb     key.Binding
	Delay      key.Binding
	Compressor key.Binding
	Stereo     key.Binding
	ABRepeat   key.Binding
	SleepTimer key.Binding
	VizStyle   key.Binding
	VizQuality key.Binding
	Repeat     key.Binding
	Shuffle    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Pause:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause")),
		SeekBack:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "-5s")),
		SeekFwd:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "+5s")),
		VolUp:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "vol+")),
		VolDown:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "vol-")),
		Slower:     key.NewBinding(key.WithKeys("["), key.WithHelp("[", "slower")),
		Faster:     key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "faster")),
		NextTrack:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		PrevTrack:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "prev")),
		BandNext:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "band")),
		BandPrev:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "band back")),
		GainUp:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "gain up")),
		GainDown:   key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "gain down")),
		EQPreset:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "eq preset")),
		FXPreset:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fx preset")),
		Reverb:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reverb")),
		Delay:      key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delay")),
		Compressor: key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "compressor")),
		Stereo:     key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "wide stereo")),
		ABRepeat:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "A/B repeat")),
		SleepTimer: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "sleep timer")),
		VizStyle:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "viz style")),
		VizQuality: key.NewBinding(key.WithKeys("V"), key.WithHelp("V", "viz quality")),
		Repeat:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		Shuffle:    key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "shuffle")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:       key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.SeekFwd, k.NextTrack, k.ABRepeat, k.EQPreset, k.VizStyle, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.SeekBack, k.SeekFwd, k.VolUp, k.VolDown, k.Slower, k.Faster},
		{k.NextTrack, k.PrevTrack, k.Repeat, k.Shuffle, k.ABRepeat, k.SleepTimer},
		{k.BandNext, k.BandPrev, k.GainUp, k.GainDown, k.EQPreset, k.FXPreset},
		{k.Reverb, k.Delay, k.Compressor, k.Stereo, k.VizStyle, k.VizQuality},
		{k.Help, k.Quit},
	}
}
