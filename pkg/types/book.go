package types

// Book is a top-level writing project.
type Book struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Time        Time   `json:"time"`
}

// Chapter is an ordered unit of a book's text.
type Chapter struct {
	ID      int    `json:"id"`
	BookID  int    `json:"bookID"`
	Title   string `json:"title"`
	Number  int    `json:"number"`
	Content string `json:"content,omitempty"`
	Time    Time   `json:"time"`
}

// Persona is a character sheet supplied to the generator as context.
type Persona struct {
	ID          int    `json:"id"`
	BookID      int    `json:"bookID"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Traits      string `json:"traits,omitempty"`
	Time        Time   `json:"time"`
}

// Time contains created/updated timestamps in Unix milliseconds.
type Time struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}
