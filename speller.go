package main

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const capitalTag = "capital"

var (
	correctionCommands = []string{"delete", "back"}
	baseStopCommands   = []string{"stop"}
)

func spellingLetters() []string {
	letters := make([]string, 0, 36)
	for r := 'a'; r <= 'z'; r++ {
		letters = append(letters, string(r))
	}
	for r := '0'; r <= '9'; r++ {
		letters = append(letters, string(r))
	}
	return letters
}

// spellingSession builds up a word from dictated letters. A session is
// used once: begin arms it, and it ends on a stop command or abort, calling
// its completion callback exactly once.
type spellingSession struct {
	bus        EventBus
	recognizer SpeechRecognizer
	narrator   SpeechSynthesizer
	gate       gate
	logger     *slog.Logger
	handlerID  string
	upper      cases.Caser

	word        []rune
	capitalMode bool
	stop        map[string]bool
	correct     map[string]bool
	onComplete  func(word string)
	active      bool
}

func newSpellingSession(bus EventBus, recognizer SpeechRecognizer, narrator SpeechSynthesizer, g gate, logger *slog.Logger) *spellingSession {
	return &spellingSession{
		bus:        bus,
		recognizer: recognizer,
		narrator:   narrator,
		gate:       g,
		logger:     logger,
		handlerID:  newHandlerID("speller"),
		upper:      cases.Upper(language.English),
	}
}

// vocabulary lists every token the session understands.
func (s *spellingSession) vocabulary() []string {
	letters := spellingLetters()
	vocab := append([]string{}, letters...)
	vocab = append(vocab, correctionCommands...)
	for w := range s.stop {
		vocab = append(vocab, w)
	}
	vocab = append(vocab, capitalTag)
	for _, l := range letters {
		if unicode.IsLetter(rune(l[0])) {
			vocab = append(vocab, capitalTag+" "+l)
		}
	}
	return vocab
}

// begin resets the session and starts listening for letters.
func (s *spellingSession) begin(onComplete func(word string), extraStop ...string) error {
	s.word = s.word[:0]
	s.capitalMode = false
	s.onComplete = onComplete
	s.correct = make(map[string]bool, len(correctionCommands))
	for _, w := range correctionCommands {
		s.correct[w] = true
	}
	s.stop = make(map[string]bool, len(baseStopCommands)+len(extraStop))
	for _, w := range append(append([]string{}, baseStopCommands...), extraStop...) {
		if w != "" {
			s.stop[w] = true
		}
	}

	if err := s.recognizer.SetVocabulary(s.vocabulary()); err != nil {
		return fmt.Errorf("set spelling vocabulary: %w", err)
	}
	if err := s.bus.Subscribe(KindWordRecognized, s.handlerID, s.handle); err != nil {
		return fmt.Errorf("listen for letters: %w", err)
	}
	s.active = true
	return nil
}

func (s *spellingSession) handle(ev Event) {
	if wr, ok := ev.(WordRecognized); ok {
		s.onRecognized(wr.Candidates)
	}
}

// onRecognized applies one recognition result. Low-confidence or ambiguous
// results are dropped.
func (s *spellingSession) onRecognized(cands []Candidate) {
	if !s.active {
		return
	}
	v, ok := tally(cands)
	if !ok || !s.gate.accept(v) {
		s.logger.Debug("spelling vote rejected", "best", v.best.Token, "confidence", v.best.Confidence)
		return
	}
	tok := v.best.Token

	switch {
	case s.correct[tok]:
		s.capitalMode = false
		if len(s.word) == 0 {
			return
		}
		deleted := s.word[len(s.word)-1]
		s.word = s.word[:len(s.word)-1]
		s.narrator.Say("deleted " + string(deleted))

	case s.stop[tok]:
		s.capitalMode = false
		s.end()

	case tok == capitalTag:
		s.capitalMode = true

	default:
		if rest, ok := strings.CutPrefix(tok, capitalTag+" "); ok {
			tok = s.upper.String(rest)
		} else if s.capitalMode {
			tok = s.upper.String(tok)
		}
		s.word = append(s.word, []rune(tok)...)
		s.capitalMode = false

		// Stop listening while speaking so the echo is not heard as input.
		if err := s.bus.Unsubscribe(KindWordRecognized, s.handlerID); err != nil {
			s.logger.Warn("pause letter listening", "error", err)
		}
		s.sayLetter(tok)
		if err := s.bus.Subscribe(KindWordRecognized, s.handlerID, s.handle); err != nil {
			s.logger.Warn("resume letter listening", "error", err)
		}
	}
}

func (s *spellingSession) sayLetter(letter string) {
	if isUppercase(letter) {
		s.narrator.Say(capitalTag + " " + letter)
		return
	}
	s.narrator.Say(letter)
}

func isUppercase(s string) bool {
	r := []rune(s)
	return len(r) == 1 && unicode.IsUpper(r[0])
}

// end finishes the session and reports the word. Later calls do nothing.
func (s *spellingSession) end() {
	if !s.active {
		return
	}
	s.active = false
	if err := s.bus.Unsubscribe(KindWordRecognized, s.handlerID); err != nil {
		s.logger.Warn("stop letter listening", "error", err)
	}
	word := string(s.word)
	s.logger.Debug("spelling finished", "length", len(s.word))
	if s.onComplete != nil {
		s.onComplete(word)
	}
}

// Word returns the letters collected so far.
func (s *spellingSession) Word() string {
	return string(s.word)
}
