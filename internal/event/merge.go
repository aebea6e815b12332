package event

import (
	"time"

	"github.com/calweave/calweave/internal/localtime"
)

// Partial holds event fields recovered by one extraction pass (prompt text or
// image). Nil pointers and empty strings mean the extractor did not produce
// the field.
type Partial struct {
	Title       *string
	Description *string
	Location    *string

	Start *localtime.DateTime
	End   *localtime.DateTime

	// Recurrence hints. Each follows the same precedence as scalar fields,
	// independently of the others.
	Weekdays    []time.Weekday
	Until       *localtime.Date
	StrideWeeks *int

	// Thumbnail is a preview reference produced only by image extraction.
	Thumbnail string
}

// Merge combines image-derived and text-derived fields into one set.
// For every field the text value wins when present and non-empty, otherwise
// the image value is used. The thumbnail always comes from the image; text
// extraction never produces one. Either input may be nil.
func Merge(fromImage, fromText *Partial) Partial {
	var img, txt Partial
	if fromImage != nil {
		img = *fromImage
	}
	if fromText != nil {
		txt = *fromText
	}

	out := Partial{
		Title:       pickString(img.Title, txt.Title),
		Description: pickString(img.Description, txt.Description),
		Location:    pickString(img.Location, txt.Location),
		Start:       pickDateTime(img.Start, txt.Start),
		End:         pickDateTime(img.End, txt.End),
		Until:       pickDate(img.Until, txt.Until),
		StrideWeeks: pickInt(img.StrideWeeks, txt.StrideWeeks),
		Thumbnail:   img.Thumbnail,
	}

	if len(txt.Weekdays) > 0 {
		out.Weekdays = txt.Weekdays
	} else {
		out.Weekdays = img.Weekdays
	}

	return out
}

func pickString(img, txt *string) *string {
	if txt != nil && *txt != "" {
		return txt
	}
	if img != nil && *img != "" {
		return img
	}
	return nil
}

func pickDateTime(img, txt *localtime.DateTime) *localtime.DateTime {
	if txt != nil {
		return txt
	}
	return img
}

func pickDate(img, txt *localtime.Date) *localtime.Date {
	if txt != nil {
		return txt
	}
	return img
}

func pickInt(img, txt *int) *int {
	if txt != nil {
		return txt
	}
	return img
}

// Apply copies the merged fields onto a draft, leaving absent fields alone.
func (p Partial) Apply(d *Draft) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Location != nil {
		d.Location = *p.Location
	}
	if p.Start != nil {
		d.StartLocal = *p.Start
	}
	if p.End != nil {
		d.EndLocal = *p.End
	}
}
