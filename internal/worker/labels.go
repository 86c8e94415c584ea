package worker

import (
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/progress"
)

// presentation is the user-facing wording of a category.
type presentation struct {
	Label      string
	Style      progress.Style
	DoneText   string
	FailPrefix string
}

var presentations = map[domain.Category]presentation{
	domain.CategoryBackgroundRemoval: {
		Label:      "Removing background…",
		Style:      progress.StylePercent,
		DoneText:   "Done! Background removed.",
		FailPrefix: "Remove background failed",
	},
	domain.CategoryDedup: {
		Label:      "Removing duplicate frames…",
		Style:      progress.StyleIndicator,
		DoneText:   "Done! Duplicate frames removed.",
		FailPrefix: "Dedup failed",
	},
	domain.CategoryDownloadVideo: {
		Label:      "Downloading from YouTube…",
		Style:      progress.StylePercent,
		DoneText:   "Done! Here's your file.",
		FailPrefix: "YouTube download failed",
	},
	domain.CategoryDownloadAudio: {
		Label:      "Downloading from YouTube…",
		Style:      progress.StylePercent,
		DoneText:   "Done! Here's your file.",
		FailPrefix: "YouTube download failed",
	},
}

func presentationFor(category domain.Category) presentation {
	if p, ok := presentations[category]; ok {
		return p
	}
	return presentation{
		Label:      "Working…",
		DoneText:   "Done!",
		FailPrefix: "Job failed",
	}
}

func (p presentation) initial() string {
	if p.Style == progress.StyleIndicator {
		return progress.Indicator(p.Label, 0)
	}
	return progress.Percent(p.Label, 0)
}
