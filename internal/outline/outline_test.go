package outline_test

import (
	"errors"
	"testing"

	"gtasksync/internal/outline"
)

func TestParse_HeadingsAndNestedItems(t *testing.T) {
	src := "# Inbox\n" +
		"- [ ] Buy milk #gtask %%[gtask_id:: t1]%%\n" +
		"\t- [ ] Skim %%[gtask_item_id:: i1]%%\n" +
		"\n" +
		"## Later\n" +
		"- plain bullet\n"

	o, err := outline.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(o.Headings) != 2 {
		t.Fatalf("expected 2 headings, got %+v", o.Headings)
	}
	if o.Headings[0].Title != "Inbox" || o.Headings[0].StartLine != 0 {
		t.Errorf("unexpected first heading: %+v", o.Headings[0])
	}
	if o.Headings[1].Title != "Later" || o.Headings[1].StartLine != 4 {
		t.Errorf("unexpected second heading: %+v", o.Headings[1])
	}

	if len(o.ListItems) != 3 {
		t.Fatalf("expected 3 list items, got %+v", o.ListItems)
	}
	task, item, bullet := o.ListItems[0], o.ListItems[1], o.ListItems[2]
	if task.StartLine != 1 || task.EndLine != 1 || task.Parent != outline.NoParent || !task.TaskLike {
		t.Errorf("unexpected task item: %+v", task)
	}
	if item.StartLine != 2 || item.Parent != 1 || !item.TaskLike {
		t.Errorf("unexpected nested item: %+v", item)
	}
	if bullet.StartLine != 5 || bullet.TaskLike {
		t.Errorf("unexpected bullet: %+v", bullet)
	}
}

func TestParse_ContinuationLinesExtendItem(t *testing.T) {
	src := "- [ ] Write report\n  with some notes\n- [ ] Next\n"

	o, err := outline.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(o.ListItems) != 2 {
		t.Fatalf("expected 2 items, got %+v", o.ListItems)
	}
	if o.ListItems[0].EndLine != 1 {
		t.Errorf("first item should end on line 1, got %+v", o.ListItems[0])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		o       outline.Outline
		lines   int
		wantErr bool
	}{
		{
			name:  "valid",
			o:     outline.Outline{ListItems: []outline.ListItem{{StartLine: 0, EndLine: 0, Parent: -1}, {StartLine: 1, EndLine: 2, Parent: 0}}},
			lines: 3,
		},
		{
			name:    "item past end",
			o:       outline.Outline{ListItems: []outline.ListItem{{StartLine: 4, EndLine: 4, Parent: -1}}},
			lines:   3,
			wantErr: true,
		},
		{
			name:    "start after end",
			o:       outline.Outline{ListItems: []outline.ListItem{{StartLine: 2, EndLine: 1, Parent: -1}}},
			lines:   3,
			wantErr: true,
		},
		{
			name:    "forward parent",
			o:       outline.Outline{ListItems: []outline.ListItem{{StartLine: 0, EndLine: 0, Parent: 2}}},
			lines:   3,
			wantErr: true,
		},
		{
			name:    "out of order",
			o:       outline.Outline{ListItems: []outline.ListItem{{StartLine: 2, EndLine: 2, Parent: -1}, {StartLine: 1, EndLine: 1, Parent: -1}}},
			lines:   3,
			wantErr: true,
		},
		{
			name:    "heading outside",
			o:       outline.Outline{Headings: []outline.Heading{{Title: "x", StartLine: 9, EndLine: 9}}},
			lines:   3,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.o.Validate(tt.lines)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var pe *outline.ParseError
				if !errors.As(err, &pe) {
					t.Errorf("expected *ParseError, got %T", err)
				}
			}
		})
	}
}
