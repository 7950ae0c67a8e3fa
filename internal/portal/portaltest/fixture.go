package portaltest

import "strings"

// EventsBlock is the events array exactly as the portal emits it inside the
// FullCalendar initialization script: bare keys, single-quoted values, "end :"
// spacing, spaced timestamps and colors split over several lines.
const EventsBlock = `[
    { id: 'C_15412_66_3_0', start: '2024-08-19T08: 00: 00',end :'2024-08-19T09: 35: 00', title:'ACCUEIL (Le Franc)',className:'title_centre', backgroundColor:'rgb(112,
        117,
        143)', extendedProps: {commentaire:'Groupe : SIG1, Module : SI130 - BRIT1 - Branches instrumentales 1'
        }
    },
    { id: 'C_10057_43_2_1', start: '2024-08-19T09: 50: 00',end :'2024-08-19T11: 25: 00', title:'MARK (Bruyndonckx)',className:'title_centre', backgroundColor:'rgb(112,
        117,
        143)', extendedProps: {commentaire:'Groupe : SIG1-inf, Module : SI110 - CGES - Compléments de gestion <br/><u>Commentaires :</u><br/>Importation horaires du 19-06-2024'
        }
    },
    { id: 'C_10063_3_7_2', start: '2024-08-20T08: 00: 00',end :'2024-08-20T09: 35: 00', title:'TSYS (Bron)',className:'title_centre', backgroundColor:'rgb(112,
        117,
        143)', extendedProps: {commentaire:'Groupe : SIG1, Module : SI120 - INGP - Ingénierie Plateformes<br/><u>Commentaires :</u><br/>Importation horaires du 19-06-2024'
        }
    },
    { id: 'C_10064_66_3_3', start: '2024-08-20T09: 50: 00',end :'2024-08-20T11: 25: 00', title:'MATH (Le Franc)',className:'title_centre', backgroundColor:'rgb(112,
        117,
        143)', extendedProps: {commentaire:'Groupe : SIG1, Module : SI130 - BRIT1 - Branches instrumentales 1<br/><u>Commentaires :</u><br/>Importation horaires du 19-06-2024'
        }
    },
    { id: 'C_10050_158_2_4', start: '2024-08-20T13: 10: 00',end :'2024-08-20T16: 35: 00', title:'BECO (Barbafieri)',className:'title_centre', backgroundColor:'rgb(112,
        117,
        143)', extendedProps: {commentaire:'Groupe : SIG1-inf, Module : SI110 - CGES - Compléments de gestion <br/><u>Commentaires :</u><br/>Importation horaires du 19-06-2024'
        }
    }
]`

// ExamBlock holds two events, one of them an exam in the portal's red.
const ExamBlock = `[
    { id: 'C_20001_12_1_0', start: '2024-09-02T08: 00: 00',end :'2024-09-02T09: 35: 00', title:'ALGO (Dupont)',className:'title_centre', backgroundColor:'rgb(112,
        117,
        143)', extendedProps: {commentaire:'Groupe : SIG1'
        }
    },
    { id: 'E_20002_12_1_1', start: '2024-09-03T13: 10: 00',end :'2024-09-03T15: 10: 00', title:'EXAMEN ALGO (Dupont)',className:'title_centre', backgroundColor:'rgb(255,
        0
        ,0)', extendedProps: {commentaire:'Salle : A101'
        }
    },
]`

// LoginPage renders the portal's login form carrying token.
func LoginPage(token string) string {
	return `<!DOCTYPE html>
<html>
<head><title>GESTES - Connexion</title></head>
<body>
<form method="post" accept-charset="utf-8" action="/gestes/connexion">
  <div style="display:none;">
    <input type="hidden" name="_method" value="POST"/>
    <input type="hidden" name="_csrfToken" autocomplete="off" value="` + token + `"/>
  </div>
  <input type="text" name="username" id="username"/>
  <input type="password" name="password" id="password"/>
  <input type="hidden" name="mobile" value="0"/>
</form>
</body>
</html>`
}

// AgendaPage renders the post-login page for username with block embedded in
// the calendar script, surrounded by unrelated scripts.
func AgendaPage(username, block string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<script src="/gestes/js/fullcalendar/index.global.min.js"></script>
<script>
  window.dataLayer = window.dataLayer || [];
  var menu = { items: [1, 2, 3], };
</script>
</head>
<body>
<div class="navbar">Connecté en tant que <strong>`)
	b.WriteString(username)
	b.WriteString(`</strong></div>
<div id="calendar"></div>
<script>
  document.addEventListener('DOMContentLoaded', function() {
    var calendarEl = document.getElementById('calendar');
    var calendar = new FullCalendar.Calendar(calendarEl, {
      initialView: 'timeGridWeek',
      locale: 'fr',
      events: `)
	b.WriteString(block)
	b.WriteString(`,
      eventClick: function(info) { showComment(info.event); }
    });
    calendar.render();
  });
</script>
</body>
</html>`)
	return b.String()
}
