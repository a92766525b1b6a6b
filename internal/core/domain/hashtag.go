package domain

import "strings"

// MaxHashtags é o máximo de hashtags aceitas em uma submissão.
const MaxHashtags = 10

// Submission é o resultado determinístico do parse de um texto bruto.
type Submission struct {
	Body     string
	Hashtags []string
}

// ParseSubmission separa o texto bruto em corpo e hashtags. Um token conta
// como hashtag quando começa com '#' seguido de um ou mais caracteres
// [A-Za-z0-9_]. Hashtags são normalizadas para minúsculas e deduplicadas
// preservando a ordem da primeira ocorrência. Função pura, sem I/O.
func ParseSubmission(raw string) (Submission, error) {
	var (
		body     []string
		hashtags []string
		seen     = map[string]struct{}{}
	)

	for _, token := range strings.Fields(raw) {
		tag, ok := hashtagToken(token)
		if !ok {
			body = append(body, token)
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		hashtags = append(hashtags, tag)
	}

	if len(hashtags) == 0 {
		return Submission{}, ErrNoHashtag
	}
	if len(hashtags) > MaxHashtags {
		return Submission{}, ErrTooManyHashtags
	}

	text := strings.Join(body, " ")
	if strings.TrimSpace(text) == "" {
		return Submission{}, ErrEmptyBody
	}

	return Submission{Body: text, Hashtags: hashtags}, nil
}

func hashtagToken(token string) (string, bool) {
	if len(token) < 2 || token[0] != '#' {
		return "", false
	}
	for i := 1; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return "", false
		}
	}
	return strings.ToLower(token), true
}
