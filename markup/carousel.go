package markup

import (
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/mail2site/mail2site/parser"
)

// carousels expands [Carousel] blocks into self-contained sliders. Each
// non-empty inner line becomes one slide: already-rendered media passes
// through, bare media filenames resolve against the images directory, and
// anything else becomes a caption slide. Every instance gets its own id so
// multiple carousels on one page don't fight over controls.
func (t *Transformer) carousels(content string) string {
	return t.carouselRe.ReplaceAllStringFunc(content, func(m string) string {
		inner := strings.TrimSpace(t.carouselRe.FindStringSubmatch(m)[1])

		var slides []string
		for _, line := range strings.Split(inner, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			slides = append(slides, carouselSlide(line))
		}
		if len(slides) == 0 {
			return inner
		}

		return renderCarousel("carousel_"+xid.New().String(), slides)
	})
}

func carouselSlide(line string) string {
	resolved := strings.Contains(line, "<img ") || strings.Contains(line, "<video ") ||
		parser.PlaceholderPattern.MatchString(line)

	switch {
	case resolved:
		return fmt.Sprintf(`<div class="carousel-item">%s</div>`, line)
	case hasAnySuffix(line, imageExtensions):
		return fmt.Sprintf(`<div class="carousel-item"><img src="../images/%s" alt="Carousel Image" style="width: 100%%; height: auto; border-radius: 8px;"></div>`, line)
	case hasAnySuffix(line, videoExtensions):
		return fmt.Sprintf(`<div class="carousel-item"><video controls style="width: 100%%; height: auto; border-radius: 8px;" preload="metadata"><source src="../images/%s" type="video/mp4"><p>Your browser doesn't support HTML video. <a href="../images/%s">Download the video</a> instead.</p></video></div>`, line, line)
	default:
		return fmt.Sprintf(`<div class="carousel-item carousel-text"><p style="text-align: center; margin: 10px 0; font-style: italic;">%s</p></div>`, line)
	}
}

func renderCarousel(id string, slides []string) string {
	var dots strings.Builder
	for i := range slides {
		fmt.Fprintf(&dots, `<span class="carousel-dot" onclick="currentSlide('%s', %d)" style="height: 12px; width: 12px; margin: 0 5px; background-color: #bbb; border-radius: 50%%; display: inline-block; cursor: pointer; transition: background-color 0.3s;"></span>`, id, i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="carousel-container" id="%s" style="position: relative; max-width: 800px; margin: 20px auto; background: #f5f5f5; border-radius: 10px; overflow: hidden; box-shadow: 0 4px 15px rgba(0,0,0,0.1);">
<div class="carousel-track" style="display: flex; transition: transform 0.3s ease;">%s</div>
<button class="carousel-btn carousel-prev" onclick="moveCarousel('%s', -1)" style="position: absolute; top: 50%%; left: 10px; transform: translateY(-50%%); background: rgba(0,0,0,0.7); color: white; border: none; padding: 10px 15px; border-radius: 50%%; cursor: pointer; font-size: 18px; z-index: 10;">&#10094;</button>
<button class="carousel-btn carousel-next" onclick="moveCarousel('%s', 1)" style="position: absolute; top: 50%%; right: 10px; transform: translateY(-50%%); background: rgba(0,0,0,0.7); color: white; border: none; padding: 10px 15px; border-radius: 50%%; cursor: pointer; font-size: 18px; z-index: 10;">&#10095;</button>
<div class="carousel-indicators" style="text-align: center; padding: 15px;">%s</div>
</div>
`, id, strings.Join(slides, ""), id, id, dots.String())

	fmt.Fprintf(&b, `<script>
if (typeof carouselData === 'undefined') { var carouselData = {}; }
carouselData['%s'] = {currentSlide: 0, totalSlides: %d};
function moveCarousel(carouselId, direction) {
    var data = carouselData[carouselId];
    var track = document.querySelector('#' + carouselId + ' .carousel-track');
    data.currentSlide += direction;
    if (data.currentSlide >= data.totalSlides) data.currentSlide = 0;
    if (data.currentSlide < 0) data.currentSlide = data.totalSlides - 1;
    track.style.transform = 'translateX(-' + (data.currentSlide * 100) + '%%)';
    updateDots(carouselId);
}
function currentSlide(carouselId, slideIndex) {
    var data = carouselData[carouselId];
    var track = document.querySelector('#' + carouselId + ' .carousel-track');
    data.currentSlide = slideIndex - 1;
    track.style.transform = 'translateX(-' + (data.currentSlide * 100) + '%%)';
    updateDots(carouselId);
}
function updateDots(carouselId) {
    var data = carouselData[carouselId];
    var dots = document.querySelectorAll('#' + carouselId + ' .carousel-dot');
    dots.forEach(function(dot, index) {
        dot.style.backgroundColor = index === data.currentSlide ? '#333' : '#bbb';
    });
}
document.addEventListener('DOMContentLoaded', function() { updateDots('%s'); });
</script>
<style>
.carousel-item { min-width: 100%%; padding: 20px; box-sizing: border-box; }
.carousel-btn:hover { background: rgba(0,0,0,0.9) !important; }
.carousel-dot:hover { background-color: #333 !important; }
</style>`, id, len(slides), id)

	return b.String()
}
