package text

// IsCyrillicLetter reports whether r belongs to the basic Russian alphabet block
// А..я (U+0410..U+044F). Ё and the extended Cyrillic letters are not included.
func IsCyrillicLetter(r rune) bool {
	return r >= 'А' && r <= 'я'
}

// HasCyrillics checks if the given string contains any Cyrillic letters
func HasCyrillics(content string) bool {
	for _, r := range content {
		if IsCyrillicLetter(r) {
			return true
		}
	}
	return false
}
